package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/playmatatu/battlerelay/internal/lobby"
)

// StatsSource exposes the latest housekeeping snapshot.
type StatsSource interface {
	Stats() lobby.Stats
}

// GetStats returns the counters from the last housekeeping tick.
func GetStats(src StatsSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, src.Stats())
	}
}
