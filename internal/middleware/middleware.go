package middleware

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"users-api/internal/logging"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// Options 中介層設定
type Options struct {
	// StaticDir 前端打包輸出目錄；不存在時不掛載
	StaticDir string
	// Exit 發生未預期 panic 時結束程序
	Exit func(code int)
}

// Install 依序掛上所有中介層
func Install(e *echo.Echo, log logging.Logger, opts Options) {
	if log == nil {
		log = logging.Nop()
	}
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}
	e.Pre(echomw.RemoveTrailingSlash())
	e.Use(RequestID())
	e.Use(AccessLog(log))
	e.Use(Recover(log, opts.Exit))
	e.Use(CORS())
	if static, ok := Static(opts.StaticDir); ok {
		e.Use(static)
		log.Info(context.Background(), "serving static frontend", "dir", opts.StaticDir)
	}
}

// CORS 全開放：任何來源，只允許 Content-Type 標頭
func CORS() echo.MiddlewareFunc {
	return echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderContentType},
	})
}

// RequestID 為每個請求產生 uuid 並寫入 X-Request-ID
func RequestID() echo.MiddlewareFunc {
	return echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator: uuid.NewString,
	})
}

// AccessLog 每個請求一筆存取日誌
func AccessLog(log logging.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			args := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				args = append(args, "error", v.Error.Error())
			}
			log.Info(c.Request().Context(), "http access", args...)
			return nil
		},
	})
}

// Recover 攔截 handler 的 panic：記錄堆疊後以 exit code 1 結束
// 這類 panic 代表程式錯誤，不嘗試繼續服務
func Recover(log logging.Logger, exit func(code int)) echo.MiddlewareFunc {
	return echomw.RecoverWithConfig(echomw.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.Error(c.Request().Context(), "fatal: panic in handler",
				"error", err.Error(),
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"stack", string(stack),
			)
			exit(1)
			return fmt.Errorf("panic recovered: %w", err)
		},
	})
}

// Static 回傳前端靜態檔中介層 (SPA fallback 到 index.html)
// /api 與 /swagger 永遠交給路由處理
func Static(dir string) (echo.MiddlewareFunc, bool) {
	if dir == "" {
		return nil, false
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return nil, false
	}
	return echomw.StaticWithConfig(echomw.StaticConfig{
		Root:  dir,
		Index: "index.html",
		HTML5: true,
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return strings.HasPrefix(p, "/api") || strings.HasPrefix(p, "/swagger")
		},
	}), true
}
