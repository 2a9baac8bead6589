package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/playmatatu/battlerelay/internal/api/handlers"
	"github.com/playmatatu/battlerelay/internal/config"
	"github.com/playmatatu/battlerelay/internal/middleware"
	"github.com/playmatatu/battlerelay/internal/store"
	"github.com/playmatatu/battlerelay/internal/ws"
)

// SetupRoutes configures all HTTP and WebSocket routes
func SetupRoutes(router *gin.Engine, hub *ws.Hub, gw store.Gateway, cfg *config.Config, logger *zap.Logger) {
	router.Use(middleware.CORSMiddleware())
	if cfg.Environment != "production" {
		router.Use(middleware.NoCache())
	}

	router.GET("/health", handlers.HealthCheck)
	router.GET("/ws", handlers.HandleWebSocket(hub))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handlers.HealthCheck)
		v1.GET("/ws", handlers.HandleWebSocket(hub))
		v1.GET("/stats", handlers.GetStats(hub))
		v1.GET("/battles/recent", handlers.GetRecentBattles(gw, logger))

		players := v1.Group("/players")
		{
			players.GET("/:userId", handlers.GetPlayerProfile(gw, logger))
			players.PUT("/:userId", handlers.UpdatePlayerProfile(gw, logger))
		}
	}
}
