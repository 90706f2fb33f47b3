package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kitemc/verifyd/internal/api"
	"github.com/kitemc/verifyd/internal/app"
	iauth "github.com/kitemc/verifyd/internal/auth"
	"github.com/kitemc/verifyd/internal/authme"
	"github.com/kitemc/verifyd/internal/database"
	"github.com/kitemc/verifyd/internal/hub"
	"github.com/kitemc/verifyd/internal/maintenance"
	"github.com/kitemc/verifyd/internal/registry"
	"github.com/kitemc/verifyd/internal/store"
	"github.com/kitemc/verifyd/internal/verify"
	"github.com/kitemc/verifyd/pkg/crypto"
	"github.com/kitemc/verifyd/pkg/mail"
)

// runtimeStack bundles the long-lived collaborators behind the HTTP server.
type runtimeStack struct {
	DB       *gorm.DB
	Users    store.UserStore
	Audits   store.AuditStore
	Codes    *verify.Manager
	Hub      *hub.Hub
	Registry *registry.Service
	Sweeper  *maintenance.Sweeper
	Router   *gin.Engine
}

// bootstrapRuntime initialises storage, services, and the HTTP router.
func bootstrapRuntime(cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := initialiseStorage(cfg, stack); err != nil {
		return nil, err
	}

	stack.Codes = verify.NewManager(
		verify.WithTTL(cfg.Verification.TTL),
		verify.WithCodeLength(cfg.Verification.CodeLength),
		verify.WithMaxAttempts(cfg.Verification.MaxAttempts),
	)
	stack.Hub = hub.NewHub()

	usernameRule, err := regexp.Compile(cfg.Registration.UsernameRule)
	if err != nil {
		return nil, fmt.Errorf("registration.username_rule: %w", err)
	}

	mailer, err := buildMailer(cfg, log)
	if err != nil {
		return nil, err
	}

	syncer, err := authme.NewClient(authme.Config{
		Enabled: cfg.AuthMe.Enabled,
		BaseURL: cfg.AuthMe.BaseURL,
		Token:   cfg.AuthMe.Token,
		Timeout: cfg.AuthMe.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise authme bridge: %w", err)
	}

	stack.Registry, err = registry.NewService(stack.Users, stack.Audits, stack.Codes, stack.Hub,
		registry.Config{
			AutoApprove:  cfg.Registration.AutoApprove,
			UsernameRule: usernameRule,
		},
		registry.WithMailer(mailer),
		registry.WithSyncer(syncer),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise registry: %w", err)
	}

	tokens, err := iauth.NewService(iauth.Config{
		Secret:   cfg.Auth.JWT.Secret,
		Issuer:   cfg.Auth.JWT.Issuer,
		TokenTTL: cfg.Auth.JWT.TTL,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise token service: %w", err)
	}

	admin, err := buildAdmin(cfg, tokens)
	if err != nil {
		return nil, err
	}

	stack.Sweeper = maintenance.NewSweeper(stack.Codes, stack.Users, stack.Audits,
		maintenance.WithSchedule(cfg.Maintenance.Schedule),
		maintenance.WithAuditRetention(cfg.Maintenance.AuditRetention),
	)

	stack.Router, err = api.NewRouter(api.Options{
		Registry:        stack.Registry,
		Hub:             stack.Hub,
		Tokens:          tokens,
		Admin:           admin,
		RevealCodes:     cfg.Registration.RevealCodes,
		PublicRateLimit: cfg.Server.PublicRateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	return stack, nil
}

// initialiseStorage selects the persistence backend from config.
func initialiseStorage(cfg *app.Config, stack *runtimeStack) error {
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	switch driver {
	case "", "file":
		dataDir := cfg.Storage.DataDir
		if dataDir == "" {
			dataDir = "./data"
		}
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}

		users, err := store.NewFileUserStore(filepath.Join(dataDir, "users.json"))
		if err != nil {
			return err
		}
		audits, err := store.NewFileAuditStore(filepath.Join(dataDir, "audit.json"))
		if err != nil {
			return err
		}
		stack.Users, stack.Audits = users, audits
		return nil

	case "sqlite", "postgres", "mysql":
		db, err := database.Open(databaseConfig(cfg, driver))
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		if err := database.AutoMigrate(db); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}

		users, err := store.NewGormUserStore(db)
		if err != nil {
			return err
		}
		audits, err := store.NewGormAuditStore(db)
		if err != nil {
			return err
		}
		stack.DB, stack.Users, stack.Audits = db, users, audits
		return nil

	default:
		return fmt.Errorf("storage.driver %q is not supported", cfg.Storage.Driver)
	}
}

func databaseConfig(cfg *app.Config, driver string) database.Config {
	out := database.Config{
		Driver: driver,
		Path:   cfg.Storage.Path,
		DSN:    cfg.Storage.DSN,
	}
	switch driver {
	case "postgres":
		out.Host = cfg.Storage.Postgres.Host
		out.Port = cfg.Storage.Postgres.Port
		out.Name = cfg.Storage.Postgres.Database
		out.User = cfg.Storage.Postgres.Username
		out.Password = cfg.Storage.Postgres.Password
	case "mysql":
		out.Host = cfg.Storage.MySQL.Host
		out.Port = cfg.Storage.MySQL.Port
		out.Name = cfg.Storage.MySQL.Database
		out.User = cfg.Storage.MySQL.Username
		out.Password = cfg.Storage.MySQL.Password
	}
	return out
}

func buildMailer(cfg *app.Config, log *zap.Logger) (mail.Mailer, error) {
	mailer, err := mail.NewSMTPMailer(mail.SMTPSettings{
		Enabled:  cfg.Email.SMTP.Enabled,
		Host:     cfg.Email.SMTP.Host,
		Port:     cfg.Email.SMTP.Port,
		Username: cfg.Email.SMTP.Username,
		Password: cfg.Email.SMTP.Password,
		From:     cfg.Email.SMTP.From,
		UseTLS:   cfg.Email.SMTP.UseTLS,
		Timeout:  cfg.Email.SMTP.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise mailer: %w", err)
	}
	if !cfg.Email.SMTP.Enabled {
		log.Info("smtp disabled; verification codes are not mailed")
	}
	return mailer, nil
}

func buildAdmin(cfg *app.Config, tokens *iauth.Service) (*iauth.Admin, error) {
	hash := strings.TrimSpace(cfg.Auth.Admin.PasswordHash)
	if hash == "" && cfg.Auth.Admin.Password != "" {
		var err error
		hash, err = crypto.HashPassword(cfg.Auth.Admin.Password)
		if err != nil {
			return nil, fmt.Errorf("hash admin password: %w", err)
		}
	}

	admin, err := iauth.NewAdmin(iauth.AdminConfig{
		Username:     cfg.Auth.Admin.Username,
		PasswordHash: hash,
	}, tokens)
	if err != nil {
		return nil, fmt.Errorf("initialise admin credential: %w", err)
	}
	return admin, nil
}

// Shutdown flushes snapshots and closes long-lived resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Sweeper != nil {
		stopCtx := s.Sweeper.Stop()
		<-stopCtx.Done()
		if err := s.Sweeper.RunOnce(ctx); err != nil {
			log.Warn("final sweep failed", zap.Error(err))
		}
	} else if s.Registry != nil {
		if err := s.Registry.Flush(ctx); err != nil {
			log.Warn("snapshot flush failed", zap.Error(err))
		}
	}

	if s.Hub != nil {
		s.Hub.Close()
	}

	if s.DB != nil {
		if sqlDB, err := s.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
