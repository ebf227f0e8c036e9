package handler

import (
	"net/http"

	"users-api/internal/api"
	"users-api/internal/cache"
	"users-api/internal/database"
	"users-api/internal/logging"

	"github.com/labstack/echo/v4"
)

// PingResponse 健康檢查回應模型
// swagger:model PingResponse
type PingResponse struct {
	// 回應訊息
	Message string `json:"message" example:"pong"`
}

// PingHandler 健康檢查
// cch 為 nil 表示未設定快取，只檢查資料庫
// @Summary     Health Check
// @Description 回傳 pong，並檢查資料庫與快取連線是否正常
// @Tags        health
// @Produce     json
// @Success     200 {object} PingResponse
// @Failure     500 {object} api.ErrorResponse
// @Router      /ping [get]
func PingHandler(db database.DB, cch cache.Cache, log logging.Logger) echo.HandlerFunc {
	if log == nil {
		log = logging.Nop()
	}
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if err := db.Ping(ctx); err != nil {
			log.Error(ctx, "ping: database unhealthy", "error", err.Error())
			return c.JSON(http.StatusInternalServerError, api.ErrorResponse{Message: "database unhealthy"})
		}
		if cch != nil {
			if err := cache.Probe(ctx, cch); err != nil {
				log.Error(ctx, "ping: cache unhealthy", "error", err.Error())
				return c.JSON(http.StatusInternalServerError, api.ErrorResponse{Message: "cache unhealthy"})
			}
		}
		return c.JSON(http.StatusOK, PingResponse{Message: "pong"})
	}
}
