package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/playmatatu/battlerelay/internal/store"
)

// GetRecentBattles lists the newest finished battles.
func GetRecentBattles(gw store.Gateway, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		battles, err := gw.GetRecentBattles(c.Request.Context())
		if err != nil {
			logger.Error("recent battles", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load battles"})
			return
		}
		if battles == nil {
			battles = []store.BattleRecord{}
		}
		c.JSON(http.StatusOK, gin.H{"battles": battles})
	}
}
