// Package api assembles the HTTP surface: public claim routes, the
// authenticated review routes, and the event stream.
package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	iauth "github.com/kitemc/verifyd/internal/auth"
	"github.com/kitemc/verifyd/internal/handlers"
	"github.com/kitemc/verifyd/internal/hub"
	"github.com/kitemc/verifyd/internal/middleware"
	"github.com/kitemc/verifyd/internal/registry"
)

// Options carries the collaborators and switches the router needs.
type Options struct {
	Registry *registry.Service
	Hub      *hub.Hub
	Tokens   *iauth.Service
	Admin    *iauth.Admin

	// RevealCodes echoes verification codes in registration responses.
	RevealCodes bool
	// PublicRateLimit caps requests per IP+path per minute on the public
	// claim routes. Zero disables the limiter.
	PublicRateLimit int
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(opts Options) (*gin.Engine, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry service must be provided")
	}
	if opts.Hub == nil {
		return nil, fmt.Errorf("review hub must be provided")
	}
	if opts.Tokens == nil {
		return nil, fmt.Errorf("token service must be provided")
	}
	if opts.Admin == nil {
		return nil, fmt.Errorf("admin credential must be provided")
	}

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.NoRoute(middleware.NotFoundHandler)

	r.GET("/health", handlers.Health())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	registration := handlers.NewRegistrationHandler(opts.Registry, opts.RevealCodes)
	authHandler := handlers.NewAuthHandler(opts.Admin)
	userHandler := handlers.NewUserHandler(opts.Registry)
	auditHandler := handlers.NewAuditHandler(opts.Registry)
	whitelistHandler := handlers.NewWhitelistHandler(opts.Registry)

	// Public claim routes, rate limited against code brute force.
	public := r.Group("/api")
	if opts.PublicRateLimit > 0 {
		public.Use(middleware.RateLimit(opts.PublicRateLimit, time.Minute))
	}
	{
		public.POST("/register", registration.Register)
		public.POST("/confirm", registration.Confirm)
		public.GET("/whitelist/:username", whitelistHandler.Check)
		public.POST("/auth/login", authHandler.Login)
	}

	// Review routes require a reviewer token.
	review := r.Group("/api")
	review.Use(middleware.Auth(opts.Tokens))
	{
		review.GET("/users", userHandler.List)
		review.PUT("/users/:id/status", userHandler.SetStatus)
		review.DELETE("/users/:id", userHandler.Remove)
		review.GET("/audit", auditHandler.List)
		review.GET("/events/ws", handlers.Events(opts.Hub))
	}

	return r, nil
}
