// Package auth issues and validates the bearer tokens used by the review
// surface. There is a single configured admin identity; tokens are
// HS256-signed JWTs.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/kitemc/verifyd/pkg/errors"
)

// DefaultTokenTTL is the fallback validity period for admin tokens.
const DefaultTokenTTL = 12 * time.Hour

// Config bundles what Service needs to sign and check tokens.
type Config struct {
	Secret   string
	Issuer   string
	TokenTTL time.Duration
	Clock    func() time.Time
}

// Claims are the custom claims embedded in issued tokens.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Service signs and validates admin tokens.
type Service struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewService constructs the token service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth: secret must be provided")
	}

	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &Service{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    ttl,
		now:    now,
	}, nil
}

// GenerateToken issues a signed token for the named admin.
func (s *Service) GenerateToken(username string) (string, time.Time, error) {
	if username == "" {
		return "", time.Time{}, errors.New("auth: username is required")
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken parses and validates a signed token, returning its claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, apperrors.ErrUnauthorized
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, apperrors.ErrUnauthorized.WithInternal(err)
	}
	if s.issuer != "" {
		if iss, issErr := claims.GetIssuer(); issErr != nil || iss != s.issuer {
			return nil, apperrors.ErrUnauthorized
		}
	}
	return &claims, nil
}
