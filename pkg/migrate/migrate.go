// Package migrate applies the goose schema. Postgres and SQLite each ship an
// embedded migration set; a directory on disk can stand in for the Postgres
// set while authoring new migrations.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where new Postgres migrations are authored.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var postgresMigrations embed.FS

//go:embed sqlite/*.sql
var sqliteMigrations embed.FS

// Runner drives one goose provider.
type Runner struct {
	p *goose.Provider
}

// NewRunner picks the embedded set for the dialect. dir, when set, replaces
// the embedded Postgres set.
func NewRunner(db *sql.DB, sqlite bool, dir string) (*Runner, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	dialect, fsys, err := source(sqlite, dir)
	if err != nil {
		return nil, err
	}
	p, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Runner{p: p}, nil
}

func source(sqlite bool, dir string) (goose.Dialect, fs.FS, error) {
	if sqlite {
		fsys, err := fs.Sub(sqliteMigrations, "sqlite")
		return goose.DialectSQLite3, fsys, err
	}
	if dir != "" {
		return goose.DialectPostgres, os.DirFS(dir), nil
	}
	fsys, err := fs.Sub(postgresMigrations, "migrations")
	return goose.DialectPostgres, fsys, err
}

func (r *Runner) Up(ctx context.Context) ([]*goose.MigrationResult, error) {
	res, err := r.p.Up(ctx)
	if err != nil {
		return res, fmt.Errorf("goose up: %w", err)
	}
	return res, nil
}

// Down rolls back the latest applied migration.
func (r *Runner) Down(ctx context.Context) (*goose.MigrationResult, error) {
	res, err := r.p.Down(ctx)
	if err != nil {
		return res, fmt.Errorf("goose down: %w", err)
	}
	return res, nil
}

func (r *Runner) Status(ctx context.Context) ([]*goose.MigrationStatus, error) {
	return r.p.Status(ctx)
}

// To migrates up or down until target is the current version.
func (r *Runner) To(ctx context.Context, target int64) ([]*goose.MigrationResult, error) {
	current, err := r.p.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("get db version: %w", err)
	}
	switch {
	case current < target:
		return r.p.UpTo(ctx, target)
	case current > target:
		return r.p.DownTo(ctx, target)
	default:
		return nil, nil
	}
}

// RunSQLite applies the embedded SQLite schema used by local mode and tests.
func RunSQLite(ctx context.Context, db *sql.DB) error {
	r, err := NewRunner(db, true, "")
	if err != nil {
		return err
	}
	_, err = r.Up(ctx)
	return err
}
