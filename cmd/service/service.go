// @title        Users API
// @version      1.0
// @description  使用者管理服務：users 資料表的 CRUD API
// @host         localhost:3000
// @BasePath     /api
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"users-api/internal/api"
	"users-api/internal/cache"
	"users-api/internal/config"
	"users-api/internal/database"
	"users-api/internal/logging"
	"users-api/internal/middleware"
	"users-api/internal/monitor"
	"users-api/internal/router"

	"github.com/labstack/echo/v4"

	_ "users-api/docs" // 引入 swag 產出的 docs
)

const heartbeatStopTimeout = 5 * time.Second

var (
	loadConfig      = config.Load
	newPgxPool      = database.NewPgxPool
	newRedisClient  = cache.NewRedisClient
	runMigrationsFn = database.RunMigrations
	startServer     = func(e *echo.Echo, addr string) error { return e.Start(addr) }
	shutdownServer  = func(ctx context.Context, e *echo.Echo) error { return e.Shutdown(ctx) }
	notifyContext   = signal.NotifyContext
	exitFunc        = os.Exit
)

// newEcho 建立 echo 實例並掛上中介層與路由
// exit 在 handler panic 時呼叫
func newEcho(cfg *config.Config, db database.DB, cch cache.Cache, logger logging.Logger, exit func(code int)) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = api.JSONSerializer{}

	middleware.Install(e, logger, middleware.Options{
		StaticDir: cfg.HTTP.StaticDir,
		Exit:      exit,
	})
	router.Setup(e, db, cch, logger)
	return e
}

// logWorkerPanic 日誌 worker 本身壞掉時只能寫到 stderr
func logWorkerPanic(r any) {
	fmt.Fprintf(os.Stderr, "fatal: panic in log worker: %v\n%s", r, debug.Stack())
	exitFunc(1)
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("設定載入失敗: %w", err)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Options{
		Level:      level,
		Dir:        cfg.Log.Dir,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxFiles,
		Console:    !cfg.App.IsProduction(),
		OnPanic:    logWorkerPanic,
	})
	if err != nil {
		return fmt.Errorf("日誌初始化失敗: %w", err)
	}
	defer logger.Close()

	// 致命錯誤先把佇列中的日誌寫進檔案再結束程序
	fatalExit := logger.FatalExit(exitFunc)

	ctx, stop := notifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := newPgxPool(ctx, cfg.Database.URL)
	if err != nil {
		logger.Error(ctx, "database connect failed", "error", err.Error())
		return fmt.Errorf("DB 連線失敗: %w", err)
	}
	defer db.Close()

	var cch cache.Cache
	if cfg.Redis.Enabled() {
		c, err := newRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error(ctx, "redis connect failed", "error", err.Error())
			return fmt.Errorf("Redis 連線失敗: %w", err)
		}
		cch = c
		defer func() {
			if err := c.Close(); err != nil {
				logger.Warn(context.Background(), "close redis failed", "error", err.Error())
			}
		}()
	}

	if err := runMigrationsFn(cfg.Database.URL); err != nil {
		logger.Error(ctx, "migration failed", "error", err.Error())
		return fmt.Errorf("Migration 執行失敗: %w", err)
	}

	if spec := cfg.Monitor.HeartbeatSpec; spec != "" {
		hb, err := monitor.New(spec, db, cch, logger, fatalExit)
		if err != nil {
			return err
		}
		hb.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), heartbeatStopTimeout)
			defer cancel()
			hb.Stop(stopCtx)
		}()
	}

	e := newEcho(cfg, db, cch, logger, fatalExit)

	errCh := make(chan error, 1)
	go func() { errCh <- startServer(e, cfg.HTTP.Addr()) }()
	logger.Info(ctx, "server started",
		"port", cfg.HTTP.Port,
		"env", cfg.App.Env,
		"cache", cfg.Redis.Enabled(),
	)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "server failed", "error", err.Error())
			return fmt.Errorf("伺服器啟動失敗: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutdown signal received, draining connections",
		"timeout", cfg.HTTP.ShutdownTimeout,
	)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := shutdownServer(shutdownCtx, e); err != nil {
		logger.Error(shutdownCtx, "graceful shutdown failed", "error", err.Error())
		return fmt.Errorf("關閉伺服器失敗: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("伺服器啟動失敗: %w", err)
	}
	logger.Info(context.Background(), "server stopped")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Print(err)
		exitFunc(1)
	}
}
