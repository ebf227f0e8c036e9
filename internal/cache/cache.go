package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ProbeKey 健康檢查寫入的 key
const ProbeKey = "users-api:probe"

// probeTTL 探測 key 的存活時間，避免殘留
const probeTTL = 30 * time.Second

// Cache 定義健康檢查與心跳需要的快取操作
// ttl <= 0 表示不設過期
type Cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd
	Close() error
}

// Probe 寫入並讀回一個探測值，確認快取可讀寫
func Probe(ctx context.Context, c Cache) error {
	stamp := time.Now().UTC().Format(time.RFC3339Nano)
	if err := c.Set(ctx, ProbeKey, stamp, probeTTL).Err(); err != nil {
		return fmt.Errorf("Probe set: %w", err)
	}
	got, err := c.Get(ctx, ProbeKey).Result()
	if err != nil {
		return fmt.Errorf("Probe get: %w", err)
	}
	if got != stamp {
		return fmt.Errorf("Probe get: unexpected value %q", got)
	}
	return nil
}

type FakeCache struct {
	GetFn   func(ctx context.Context, key string) *redis.StringCmd
	SetFn   func(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd
	CloseFn func() error
}

// Get 執行 Fake 設定或 panic
func (f *FakeCache) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.GetFn != nil {
		return f.GetFn(ctx, key)
	}
	panic("unexpected Get")
}

// Set 執行 Fake 設定或 panic
func (f *FakeCache) Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	if f.SetFn != nil {
		return f.SetFn(ctx, key, value, ttl)
	}
	panic("unexpected Set")
}

// Close 執行 Fake 設定或 no-op
func (f *FakeCache) Close() error {
	if f.CloseFn != nil {
		return f.CloseFn()
	}
	return nil
}
