// Package db owns the GORM connection shared by the invoice repositories.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/marketplace-commissions/pkg/config"
	"github.com/angelmondragon/marketplace-commissions/pkg/logger"
)

// Pinger is the readiness surface used by /health/ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Client wraps the shared GORM connection.
type Client struct {
	conn *gorm.DB
}

// New opens Postgres through pgx, or the local SQLite file when useSQLite is
// set. Queries slower than cfg.SlowQuery are logged as warnings.
func New(ctx context.Context, cfg config.DBConfig, useSQLite bool, logg *logger.Logger) (*Client, error) {
	dialector, err := dialectorFor(cfg, useSQLite)
	if err != nil {
		return nil, err
	}
	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 queryLogger(logg, cfg.SlowQuery),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("opening db connection: %w", err)
	}

	pool, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql db handle: %w", err)
	}
	if useSQLite {
		// One writer at a time; a single connection avoids SQLITE_BUSY.
		pool.SetMaxOpenConns(1)
	} else {
		pool.SetMaxOpenConns(cfg.MaxOpenConns)
		pool.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	pool.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if logg != nil {
		logg.Info(logg.WithField(ctx, "dialect", dialector.Name()), "database connection established")
	}
	return &Client{conn: conn}, nil
}

func dialectorFor(cfg config.DBConfig, useSQLite bool) (gorm.Dialector, error) {
	switch {
	case useSQLite:
		return sqlite.Open(cfg.SQLitePath), nil
	case cfg.DSN == "":
		return nil, errors.New("database DSN is required")
	default:
		return postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true}), nil
	}
}

// NewFromGorm wraps an already opened connection (tests, CLIs).
func NewFromGorm(conn *gorm.DB) *Client {
	return &Client{conn: conn}
}

func (c *Client) DB() *gorm.DB {
	return c.conn
}

func (c *Client) Ping(ctx context.Context) error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.PingContext(ctx)
}

func (c *Client) Close() error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.Close()
}

// WithTx runs fn in a transaction that commits only when fn returns nil.
// A panic in fn rolls back and is re-raised.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.conn.WithContext(ctx).Transaction(fn)
}

// slowQueries forwards GORM's slow query and error lines to the service log.
type slowQueries struct {
	logg *logger.Logger
}

func (s slowQueries) Printf(format string, args ...any) {
	s.logg.Warn(context.Background(), fmt.Sprintf(format, args...))
}

func queryLogger(logg *logger.Logger, threshold time.Duration) gormlogger.Interface {
	if logg == nil {
		return gormlogger.Discard
	}
	return gormlogger.New(slowQueries{logg: logg}, gormlogger.Config{
		SlowThreshold:             threshold,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		ParameterizedQueries:      true,
		Colorful:                  false,
	})
}
