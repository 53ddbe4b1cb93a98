package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/nirvana-ai/voice-relay/internal/config"
	"github.com/nirvana-ai/voice-relay/internal/websocket"
)

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, hub *websocket.Hub, cfg *config.Config, logger *zap.Logger) {
	// Frontend
	e.File("/", "static/index.html")
	e.Static("/static", "static")

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, HealthResponse{
			Status:           "ok",
			GeminiConfigured: cfg.GeminiAPIKey != "",
		})
	})

	// WebSocket endpoint
	e.GET("/ws", func(c echo.Context) error {
		return websocket.HandleWebSocket(hub, c, logger)
	})
}
