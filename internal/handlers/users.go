package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kitemc/verifyd/internal/middleware"
	"github.com/kitemc/verifyd/internal/models"
	"github.com/kitemc/verifyd/internal/registry"
	"github.com/kitemc/verifyd/pkg/response"
)

// UserHandler exposes the review routes for claim management.
type UserHandler struct {
	svc *registry.Service
}

type setStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending approved rejected"`
}

func NewUserHandler(svc *registry.Service) *UserHandler {
	return &UserHandler{svc: svc}
}

// GET /api/users
func (h *UserHandler) List(c *gin.Context) {
	status := models.Status(c.Query("status"))

	users, err := h.svc.ListUsers(c.Request.Context(), status)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, users, &response.Meta{Total: len(users)})
}

// PUT /api/users/:id/status
func (h *UserHandler) SetStatus(c *gin.Context) {
	var body setStatusRequest
	if !bindAndValidate(c, &body) {
		return
	}

	record, err := h.svc.SetStatus(c.Request.Context(), c.Param("id"), models.Status(body.Status), middleware.Actor(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, record)
}

// DELETE /api/users/:id
func (h *UserHandler) Remove(c *gin.Context) {
	if err := h.svc.Remove(c.Request.Context(), c.Param("id"), middleware.Actor(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"removed": true})
}
