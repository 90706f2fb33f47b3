package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/kitemc/verifyd/internal/auth"
	apperrors "github.com/kitemc/verifyd/pkg/errors"
	"github.com/kitemc/verifyd/pkg/response"
)

const (
	CtxClaimsKey = "authClaims"
	CtxActorKey  = "actor"
)

// Auth enforces bearer-token authentication on review routes.
func Auth(tokens *iauth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			response.Error(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := tokens.ValidateToken(strings.TrimSpace(authz[7:]))
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxActorKey, claims.Username)
		c.Next()
	}
}

// Actor returns the authenticated reviewer name from the request context.
func Actor(c *gin.Context) string {
	return c.GetString(CtxActorKey)
}
