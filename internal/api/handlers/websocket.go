package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/playmatatu/battlerelay/internal/ws"
)

// HandleWebSocket upgrades the request onto the battle hub.
func HandleWebSocket(hub *ws.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		hub.ServeWS(c.Writer, c.Request)
	}
}
