package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type (
	// Config 服務的完整設定，來源依序為 YAML 檔 (可選)、.env (可選)、環境變數
	Config struct {
		App      AppConfig      `yaml:"app"`
		HTTP     HTTPConfig     `yaml:"http"`
		Log      LogConfig      `yaml:"log"`
		Database DatabaseConfig `yaml:"database"`
		Redis    RedisConfig    `yaml:"redis"`
		Monitor  MonitorConfig  `yaml:"monitor"`
	}

	AppConfig struct {
		Env string `yaml:"env" env:"APP_ENV" env-default:"development"`
	}

	HTTPConfig struct {
		Port            int           `yaml:"port" env:"PORT" env-default:"3000" validate:"min=1,max=65535"`
		StaticDir       string        `yaml:"staticDir" env:"STATIC_DIR" env-default:"frontend/dist"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout" env:"SHUTDOWN_TIMEOUT" env-default:"10s" validate:"gt=0"`
	}

	LogConfig struct {
		Level     string `yaml:"level" env:"LOG_LEVEL" env-default:"info" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`
		Dir       string `yaml:"dir" env:"LOG_DIR" env-default:"logs" validate:"required"`
		MaxSizeMB int    `yaml:"maxSizeMB" env:"LOG_MAX_SIZE_MB" env-default:"5" validate:"gt=0"`
		MaxFiles  int    `yaml:"maxFiles" env:"LOG_MAX_FILES" env-default:"5" validate:"gt=0"`
	}

	DatabaseConfig struct {
		URL string `yaml:"url" env:"DATABASE_URL" validate:"required"`
	}

	// RedisConfig Addr 為空時不啟用快取探測
	RedisConfig struct {
		Addr     string `yaml:"addr" env:"REDIS_ADDR"`
		Password string `yaml:"password" env:"REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0" validate:"gte=0"`
	}

	// MonitorConfig Spec 為空時停用心跳檢查
	MonitorConfig struct {
		HeartbeatSpec string `yaml:"heartbeatSpec" env:"HEARTBEAT_SPEC" env-default:"@every 1m"`
	}
)

// IsProduction 是否為 production 模式 (關閉 console 日誌)
func (a AppConfig) IsProduction() bool {
	return a.Env == "production"
}

// Addr 監聽位址
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf(":%d", h.Port)
}

// Enabled 是否設定了 Redis
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

var (
	loadDotEnv = godotenv.Load
	validate   = validator.New()
)

// Load 讀取設定：
//  1. 若存在 .env 則先載入 (不覆寫既有環境變數)
//  2. 若 CONFIG_PATH 有值則讀取該 YAML 檔，環境變數優先
//  3. 否則只讀環境變數
//
// 最後以 validator 檢查欄位
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
