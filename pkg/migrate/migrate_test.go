package migrate

import (
	"context"
	"database/sql"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openSQLite(t *testing.T) (*gorm.DB, *sql.DB) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn, sqlDB
}

func TestEmbeddedMigrationsAreWellFormed(t *testing.T) {
	for sub, fsys := range map[string]fs.FS{"migrations": postgresMigrations, "sqlite": sqliteMigrations} {
		scoped, err := fs.Sub(fsys, sub)
		require.NoError(t, err)
		assert.NoError(t, validateFS(scoped), sub)
	}
	assert.NoError(t, ValidateDir("migrations"))
}

func TestValidateDirRejects(t *testing.T) {
	cases := map[string]map[string]string{
		"bad name":     {"create_orders.sql": "-- +goose Up\n-- +goose Down\n"},
		"duplicate":    {"20260101000000_a.sql": "-- +goose Up\n-- +goose Down\n", "20260101000000_b.sql": "-- +goose Up\n-- +goose Down\n"},
		"missing down": {"20260101000000_a.sql": "-- +goose Up\n"},
	}
	for name, files := range cases {
		dir := t.TempDir()
		for file, body := range files {
			require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(body), 0o644))
		}
		assert.Error(t, ValidateDir(dir), name)
	}
}

func TestCreateSQLMigrationWritesGooseTemplate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "new")
	path, err := CreateSQLMigration(dir, "Add Invoice Notes!")
	require.NoError(t, err)
	assert.Contains(t, path, "_add_invoice_notes.sql")
	assert.NoError(t, ValidateDir(dir))

	_, err = CreateSQLMigration(dir, "!!!")
	assert.Error(t, err)
}

func TestRunnerWalksSQLiteSchema(t *testing.T) {
	_, sqlDB := openSQLite(t)
	ctx := context.Background()

	r, err := NewRunner(sqlDB, true, "")
	require.NoError(t, err)
	applied, err := r.Up(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, applied)

	statuses, err := r.Status(ctx)
	require.NoError(t, err)
	for _, s := range statuses {
		assert.Equal(t, goose.StateApplied, s.State, s.Source.Path)
	}

	_, err = r.Down(ctx)
	require.NoError(t, err)
	_, err = r.To(ctx, statuses[len(statuses)-1].Source.Version)
	require.NoError(t, err)

	_, err = NewRunner(nil, true, "")
	assert.Error(t, err)
}

func TestRunSQLiteEnforcesSingleOpenPeriod(t *testing.T) {
	conn, sqlDB := openSQLite(t)
	ctx := context.Background()
	require.NoError(t, RunSQLite(ctx, sqlDB))
	require.NoError(t, RunSQLite(ctx, sqlDB), "re-running the schema must be a no-op")

	storeID := uuid.NewString()
	now := time.Now().UTC()
	insert := "INSERT INTO store_periods (id, store_id, start_date) VALUES (?, ?, ?)"
	require.NoError(t, conn.Exec(insert, uuid.NewString(), storeID, now).Error)
	require.Error(t, conn.Exec(insert, uuid.NewString(), storeID, now).Error)

	closeStmt := "UPDATE store_periods SET end_date = ? WHERE store_id = ? AND end_date IS NULL"
	require.NoError(t, conn.Exec(closeStmt, now, storeID).Error)
	require.NoError(t, conn.Exec(insert, uuid.NewString(), storeID, now).Error)
}
