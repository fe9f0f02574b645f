// Package dbtest opens a migrated sqlite store for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/tansive/reportformatsrv/internal/reportformats/config"
	"github.com/tansive/reportformatsrv/internal/reportformats/db"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/dbmanager"
)

// NewStore returns a store backed by a fresh sqlite file in t.TempDir().
func NewStore(t *testing.T) db.Store {
	t.Helper()
	ctx := Context()
	sqlDB, err := dbmanager.OpenAndMigrate(ctx, config.DBConfig{
		Driver: dbmanager.DriverSqlite,
		DSN:    filepath.Join(t.TempDir(), "reportformats_test.db"),
	})
	require.Nil(t, err)
	s := db.NewStore(sqlDB)
	t.Cleanup(func() { s.Close() })
	return s
}

// Context returns a context carrying a test logger.
func Context() context.Context {
	logger := zerolog.New(zerolog.NewConsoleWriter()).Level(zerolog.WarnLevel)
	return logger.WithContext(context.Background())
}
