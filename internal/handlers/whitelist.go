package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kitemc/verifyd/internal/registry"
	"github.com/kitemc/verifyd/pkg/response"
)

// WhitelistHandler answers the login-gate question asked by the game proxy:
// may this username join.
type WhitelistHandler struct {
	svc *registry.Service
}

func NewWhitelistHandler(svc *registry.Service) *WhitelistHandler {
	return &WhitelistHandler{svc: svc}
}

// GET /api/whitelist/:username
func (h *WhitelistHandler) Check(c *gin.Context) {
	username := c.Param("username")

	approved, err := h.svc.IsApproved(c.Request.Context(), username)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"username": username,
		"allowed":  approved,
	})
}
