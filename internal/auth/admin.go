package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/kitemc/verifyd/pkg/crypto"
	apperrors "github.com/kitemc/verifyd/pkg/errors"
)

// AdminConfig is the single reviewer identity allowed to log in.
type AdminConfig struct {
	Username     string
	PasswordHash string
}

// Admin authenticates the configured reviewer and mints their tokens.
type Admin struct {
	username     string
	passwordHash string
	tokens       *Service
}

// NewAdmin wires the configured credential to the token service.
func NewAdmin(cfg AdminConfig, tokens *Service) (*Admin, error) {
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	if cfg.Username == "" || cfg.PasswordHash == "" {
		return nil, errors.New("auth: admin credential must be configured")
	}
	return &Admin{
		username:     cfg.Username,
		passwordHash: cfg.PasswordHash,
		tokens:       tokens,
	}, nil
}

// Login checks the credential and returns a fresh token. The same error is
// returned for a wrong username and a wrong password.
func (a *Admin) Login(username, password string) (string, time.Time, error) {
	if !strings.EqualFold(username, a.username) || !crypto.VerifyPassword(a.passwordHash, password) {
		return "", time.Time{}, apperrors.ErrUnauthorized
	}
	return a.tokens.GenerateToken(a.username)
}
