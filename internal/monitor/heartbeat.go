// Package monitor runs a periodic liveness probe against the database and
// the optional cache.
package monitor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"users-api/internal/cache"
	"users-api/internal/database"
	"users-api/internal/logging"

	"github.com/robfig/cron/v3"
)

const probeTimeout = 5 * time.Second

// Heartbeat 依 cron 排程檢查資料庫與快取
type Heartbeat struct {
	cron  *cron.Cron
	db    database.DB
	cache cache.Cache
	log   logging.Logger
	exit  func(code int)
}

// New 建立心跳；spec 為 cron 表達式 (例如 "@every 1m")
// cch 可為 nil；exit 在工作 panic 時呼叫
func New(spec string, db database.DB, cch cache.Cache, log logging.Logger, exit func(code int)) (*Heartbeat, error) {
	h := &Heartbeat{
		cron:  cron.New(),
		db:    db,
		cache: cch,
		log:   log.With("component", "heartbeat"),
		exit:  exit,
	}
	if _, err := h.cron.AddFunc(spec, h.guard(h.Beat)); err != nil {
		return nil, fmt.Errorf("heartbeat schedule %q: %w", spec, err)
	}
	return h, nil
}

func (h *Heartbeat) Start() {
	h.cron.Start()
}

// Stop 停止排程並等待執行中的工作結束
func (h *Heartbeat) Stop(ctx context.Context) {
	done := h.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		h.log.Warn(ctx, "heartbeat stop timed out")
	}
}

// Beat 執行一次探測；失敗只記錄 warn
func (h *Heartbeat) Beat() {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	start := time.Now()
	dbErr := h.db.Ping(ctx)
	if dbErr != nil {
		h.log.Warn(ctx, "heartbeat: database unreachable", "error", dbErr.Error())
	}
	var cacheErr error
	if h.cache != nil {
		if cacheErr = cache.Probe(ctx, h.cache); cacheErr != nil {
			h.log.Warn(ctx, "heartbeat: cache unreachable", "error", cacheErr.Error())
		}
	}
	if dbErr == nil && cacheErr == nil {
		h.log.Debug(ctx, "heartbeat ok", "duration", time.Since(start))
	}
}

// guard 背景工作 panic 視為致命錯誤
func (h *Heartbeat) guard(fn func()) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				h.log.Error(context.Background(), "fatal: panic in heartbeat",
					"error", fmt.Sprint(r),
					"stack", string(debug.Stack()),
				)
				h.exit(1)
			}
		}()
		fn()
	}
}
