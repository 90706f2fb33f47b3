// Package app holds runtime configuration and process-level wiring helpers.
package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the verifyd server.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Verification VerificationConfig `mapstructure:"verification"`
	Registration RegistrationConfig `mapstructure:"registration"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Email        EmailConfig        `mapstructure:"email"`
	AuthMe       AuthMeConfig       `mapstructure:"authme"`
	Maintenance  MaintenanceConfig  `mapstructure:"maintenance"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int    `mapstructure:"port"`
	LogLevel        string `mapstructure:"log_level"`
	PublicRateLimit int    `mapstructure:"public_rate_limit"`
}

// StorageConfig selects the persistence backend. Driver "file" uses JSON
// snapshots; "sqlite", "postgres" and "mysql" go through the relational layer.
type StorageConfig struct {
	Driver   string       `mapstructure:"driver"`
	DataDir  string       `mapstructure:"data_dir"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// VerificationConfig tunes the code lifecycle.
type VerificationConfig struct {
	TTL         time.Duration `mapstructure:"ttl"`
	CodeLength  int           `mapstructure:"code_length"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// RegistrationConfig tunes claim acceptance.
type RegistrationConfig struct {
	UsernameRule string `mapstructure:"username_rule"`
	AutoApprove  bool   `mapstructure:"auto_approve"`
	RevealCodes  bool   `mapstructure:"reveal_codes"`
}

// AuthConfig captures reviewer authentication settings.
type AuthConfig struct {
	JWT   JWTSettings   `mapstructure:"jwt"`
	Admin AdminSettings `mapstructure:"admin"`
}

// JWTSettings configures reviewer tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"token_ttl"`
}

// AdminSettings is the single reviewer credential. Password is hashed at
// startup; PasswordHash wins when both are set.
type AdminSettings struct {
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	PasswordHash string `mapstructure:"password_hash"`
}

// EmailConfig captures outbound email settings.
type EmailConfig struct {
	SMTP SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig defines SMTP dialer settings for sending email.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AuthMeConfig points at the legacy credential bridge.
type AuthMeConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// MaintenanceConfig tunes the background sweeper.
type MaintenanceConfig struct {
	Schedule       string        `mapstructure:"schedule"`
	AuditRetention time.Duration `mapstructure:"audit_retention"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("VERIFYD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.public_rate_limit", 60)

	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.path", "./data/verifyd.sqlite")

	v.SetDefault("verification.ttl", "10m")
	v.SetDefault("verification.code_length", 6)
	v.SetDefault("verification.max_attempts", 5)

	v.SetDefault("registration.username_rule", `^[A-Za-z0-9_]{3,16}$`)
	v.SetDefault("registration.auto_approve", false)
	v.SetDefault("registration.reveal_codes", false)

	v.SetDefault("auth.jwt.issuer", "verifyd")
	v.SetDefault("auth.jwt.token_ttl", "12h")
	v.SetDefault("auth.admin.username", "admin")

	v.SetDefault("email.smtp.enabled", false)
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.use_tls", true)
	v.SetDefault("email.smtp.timeout", "10s")

	v.SetDefault("authme.enabled", false)
	v.SetDefault("authme.timeout", "5s")

	v.SetDefault("maintenance.schedule", "@every 1m")
	v.SetDefault("maintenance.audit_retention", "2160h") // 90 days
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
