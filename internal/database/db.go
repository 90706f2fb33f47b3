package database

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/kitemc/verifyd/internal/models"
)

// Config contains relational database connection options.
type Config struct {
	Driver   string // sqlite, postgres, or mysql
	Path     string // SQLite database path when Driver == sqlite
	DSN      string // Optional DSN override
	Host     string
	Port     int
	Name     string
	User     string
	Password string
}

// Open initialises a gorm.DB using the provided configuration.
func Open(cfg Config) (*gorm.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = "sqlite"
	}

	switch driver {
	case "sqlite":
		return openSQLite(cfg)
	case "postgres", "postgresql":
		return openPostgres(cfg)
	case "mysql":
		return openMySQL(cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// AutoMigrate applies the schema for the registry tables.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	return db.AutoMigrate(
		&models.UserRecord{},
		&models.AuditRecord{},
	)
}
