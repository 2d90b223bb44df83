package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/marketplace-commissions/internal/bootstrap"
	"github.com/angelmondragon/marketplace-commissions/pkg/config"
	"github.com/angelmondragon/marketplace-commissions/pkg/db"
	"github.com/angelmondragon/marketplace-commissions/pkg/logger"
	"github.com/angelmondragon/marketplace-commissions/pkg/migrate"
	"github.com/angelmondragon/marketplace-commissions/pkg/outbox"
)

func main() {
	root := newRootCmd(os.Stdout, connect)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "invoicectl: %v\n", err)
		os.Exit(1)
	}
}

// connect loads configuration from the environment and opens the database
// and optional proof storage.
func connect(ctx context.Context) (*runtime, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cfg.Service.Kind = "invoicectl"

	logg := logger.New(logger.Options{
		ServiceName: "invoicectl",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Output:      os.Stderr,
	})

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap database: %w", err)
	}
	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		_ = dbClient.Close()
		return nil, fmt.Errorf("run dev migrations: %w", err)
	}

	gcsClient, err := bootstrap.MaybeGCS(ctx, cfg, logg)
	if err != nil {
		_ = dbClient.Close()
		return nil, fmt.Errorf("bootstrap gcs: %w", err)
	}

	inv, err := bootstrap.NewInvoices(bootstrap.InvoiceParams{
		Config: cfg,
		Logger: logg,
		DB:     dbClient,
		GCS:    gcsClient,
	})
	if err != nil {
		_ = multierr.Combine(gcsClient.Close(), dbClient.Close())
		return nil, err
	}

	return &runtime{
		Invoices:    inv,
		DeadLetters: outbox.NewDeadLetters(dbClient.DB()),
		Logger:      logg,
		close: func() error {
			return multierr.Combine(gcsClient.Close(), dbClient.Close())
		},
	}, nil
}
