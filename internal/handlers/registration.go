package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kitemc/verifyd/internal/registry"
	"github.com/kitemc/verifyd/pkg/response"
)

// RegistrationHandler exposes the public claim routes.
type RegistrationHandler struct {
	svc *registry.Service
	// revealCodes echoes minted codes in the API response, for deployments
	// without outbound mail. Off in production.
	revealCodes bool
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=16"`
	Email    string `json:"email" validate:"required,email"`
}

type confirmRequest struct {
	Identity string `json:"identity" validate:"required"`
	Code     string `json:"code" validate:"required"`
}

func NewRegistrationHandler(svc *registry.Service, revealCodes bool) *RegistrationHandler {
	return &RegistrationHandler{svc: svc, revealCodes: revealCodes}
}

// POST /api/register
func (h *RegistrationHandler) Register(c *gin.Context) {
	var body registerRequest
	if !bindAndValidate(c, &body) {
		return
	}

	record, delivery, err := h.svc.Register(c.Request.Context(), body.Username, body.Email)
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := gin.H{
		"id":              record.ID,
		"username":        record.Username,
		"status":          record.Status,
		"code_expires_at": delivery.ExpiresAt.Format(time.RFC3339),
	}
	if h.revealCodes {
		payload["code"] = delivery.Code
	}
	response.Success(c, http.StatusCreated, payload)
}

// POST /api/confirm
func (h *RegistrationHandler) Confirm(c *gin.Context) {
	var body confirmRequest
	if !bindAndValidate(c, &body) {
		return
	}

	record, err := h.svc.ConfirmCode(c.Request.Context(), body.Identity, body.Code)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"id":       record.ID,
		"username": record.Username,
		"status":   record.Status,
	})
}
