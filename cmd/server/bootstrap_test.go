package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kitemc/verifyd/internal/app"
)

func testConfig(t *testing.T) *app.Config {
	t.Helper()
	return &app.Config{
		Server: app.ServerConfig{Port: 0, LogLevel: "error"},
		Storage: app.StorageConfig{
			Driver:  "file",
			DataDir: t.TempDir(),
		},
		Verification: app.VerificationConfig{
			TTL:         time.Minute,
			CodeLength:  6,
			MaxAttempts: 5,
		},
		Registration: app.RegistrationConfig{
			UsernameRule: `^[A-Za-z0-9_]{3,16}$`,
		},
		Auth: app.AuthConfig{
			JWT:   app.JWTSettings{Secret: "bootstrap-test-secret"},
			Admin: app.AdminSettings{Username: "admin", Password: "hunter2"},
		},
		Maintenance: app.MaintenanceConfig{Schedule: "@every 1h"},
	}
}

func TestBootstrapRuntimeFileDriver(t *testing.T) {
	cfg := testConfig(t)

	stack, err := bootstrapRuntime(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, stack.Users)
	require.NotNil(t, stack.Audits)
	require.NotNil(t, stack.Registry)
	require.NotNil(t, stack.Router)
	require.Nil(t, stack.DB)

	stack.Shutdown(context.Background(), zap.NewNop())
}

func TestBootstrapRuntimeSQLiteDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Driver = "sqlite"
	cfg.Storage.Path = t.TempDir() + "/verifyd.sqlite"

	stack, err := bootstrapRuntime(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, stack.DB)

	stack.Shutdown(context.Background(), zap.NewNop())
}

func TestBootstrapRuntimeRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Driver = "cassandra"

	_, err := bootstrapRuntime(cfg, zap.NewNop())
	require.Error(t, err)
}

func TestBootstrapRuntimeRejectsBadUsernameRule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Registration.UsernameRule = "["

	_, err := bootstrapRuntime(cfg, zap.NewNop())
	require.Error(t, err)
}
