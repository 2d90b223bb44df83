// Package dbtest opens throwaway SQLite databases carrying the service schema.
package dbtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-commissions/pkg/db"
	"github.com/angelmondragon/marketplace-commissions/pkg/migrate"
)

// Open returns an isolated in-memory database with every migration applied.
// The pool is pinned to one connection, so code under test must route all
// queries inside a transaction through the tx handle.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migrate.RunSQLite(context.Background(), sqlDB))
	return conn
}

// Client wraps Open in a db.Client for services that need WithTx.
func Client(t testing.TB) *db.Client {
	t.Helper()
	return db.NewFromGorm(Open(t))
}
