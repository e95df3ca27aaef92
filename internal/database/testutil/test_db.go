// Package testutil opens throwaway SQLite databases for package tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/saudema/saudema/internal/database"
)

// TestDBOption customises MustOpenTestDB.
type TestDBOption func(*testDB)

type testDB struct {
	migrate  bool
	queryLog bool
	seed     *database.SeedOptions
	fixtures []any
}

// WithAutoMigrate applies the schema after opening the database.
func WithAutoMigrate() TestDBOption {
	return func(db *testDB) { db.migrate = true }
}

// WithAdmin migrates and seeds an administrator with a cheap bcrypt cost.
func WithAdmin(email, password string) TestDBOption {
	return func(db *testDB) {
		db.migrate = true
		db.seed = &database.SeedOptions{
			AdminUsername: "admin",
			AdminEmail:    email,
			AdminPassword: password,
			PasswordCost:  4,
		}
	}
}

// WithFixtures migrates and inserts rows, in order, once the schema exists.
// Each row must be a pointer to a model.
func WithFixtures(rows ...any) TestDBOption {
	return func(db *testDB) {
		db.migrate = true
		db.fixtures = append(db.fixtures, rows...)
	}
}

// WithQueryLog routes failed and slow statements to the test log.
func WithQueryLog() TestDBOption {
	return func(db *testDB) { db.queryLog = true }
}

// MustOpenTestDB opens a private in-memory SQLite database. Each call gets
// its own named database so tests never observe each other's rows.
func MustOpenTestDB(t *testing.T, opts ...TestDBOption) *gorm.DB {
	t.Helper()

	var setup testDB
	for _, opt := range opts {
		opt(&setup)
	}

	cfg := database.Config{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString()),
	}
	if setup.queryLog {
		cfg.Logger = zaptest.NewLogger(t)
	}
	db, err := database.Open(cfg)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if setup.migrate {
		require.NoError(t, database.AutoMigrate(db))
	}
	if setup.seed != nil {
		require.NoError(t, database.SeedData(db, *setup.seed))
	}
	for _, row := range setup.fixtures {
		require.NoError(t, db.Create(row).Error, "fixture %T", row)
	}
	return db
}
