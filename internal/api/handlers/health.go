package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

var startTime = time.Now()

const (
	service = "battlerelay"
	version = "1.0.0"
)

// HealthCheck returns server health status
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": service,
		"version": version,
		"uptime":  time.Since(startTime).String(),
	})
}
