package router

import (
	"users-api/internal/cache"
	"users-api/internal/database"
	"users-api/internal/handler"
	"users-api/internal/handler/users"
	"users-api/internal/logging"

	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"
)

// Setup 註冊所有路由
// cch 可為 nil (未設定 Redis)
func Setup(e *echo.Echo, db database.DB, cch cache.Cache, log logging.Logger) {
	api := e.Group("/api")

	// 健康檢查
	api.GET("/ping", handler.PingHandler(db, cch, log))

	// Users CRUD
	h := users.NewHandler(db, log)
	apiUsers := api.Group("/users")
	apiUsers.GET("", h.List())
	apiUsers.POST("", h.Create())
	apiUsers.GET("/:id", h.Get())
	apiUsers.PUT("/:id", h.Update())
	apiUsers.DELETE("/:id", h.Delete())

	// API 文件
	e.GET("/swagger/*", echoSwagger.WrapHandler)
}
