package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kitemc/verifyd/internal/database"
)

// MustOpenTestDB opens a migrated throwaway SQLite database for tests.
// Each test gets its own file under t.TempDir so state never leaks between
// tests sharing a process. The connection is closed via t.Cleanup.
func MustOpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "verifyd-test.sqlite"),
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}
