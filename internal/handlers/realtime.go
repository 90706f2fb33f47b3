package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/kitemc/verifyd/internal/hub"
)

// Events upgrades the connection to a review event stream.
func Events(h *hub.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.ServeWS(c.Writer, c.Request)
	}
}
