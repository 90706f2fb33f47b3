package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	iauth "github.com/kitemc/verifyd/internal/auth"
	"github.com/kitemc/verifyd/pkg/response"
)

// AuthHandler authenticates the reviewer.
type AuthHandler struct {
	admin *iauth.Admin
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewAuthHandler(admin *iauth.Admin) *AuthHandler {
	return &AuthHandler{admin: admin}
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if !bindAndValidate(c, &body) {
		return
	}

	token, expiresAt, err := h.admin.Login(body.Username, body.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}
