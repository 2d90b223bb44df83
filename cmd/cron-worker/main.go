package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marketplace-commissions/internal/bootstrap"
	"github.com/angelmondragon/marketplace-commissions/internal/cron"
	"github.com/angelmondragon/marketplace-commissions/pkg/config"
	"github.com/angelmondragon/marketplace-commissions/pkg/db"
	"github.com/angelmondragon/marketplace-commissions/pkg/instance"
	"github.com/angelmondragon/marketplace-commissions/pkg/logger"
	"github.com/angelmondragon/marketplace-commissions/pkg/metrics"
	"github.com/angelmondragon/marketplace-commissions/pkg/migrate"
	"github.com/angelmondragon/marketplace-commissions/pkg/outbox"
	"github.com/angelmondragon/marketplace-commissions/pkg/redis"
)

const serviceName = "cron-worker"

const day = 24 * time.Hour

func main() {
	once := flag.Bool("once", false, "run one tick and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *once); err != nil && !errors.Is(err, context.Canceled) {
		logger.New(logger.Options{ServiceName: serviceName}).Error(context.Background(), "cron worker stopped", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, once bool) error {
	if err := godotenv.Load(); err != nil {
		logger.New(logger.Options{ServiceName: serviceName}).Warn(ctx, ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.Service.Kind = serviceName

	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceName,
		"instance":    instance.GetID(),
	})

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		return err
	}
	defer closeLogged(ctx, logg, "database", dbClient.Close)
	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	// The lease needs Redis even though the API can run without it.
	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer closeLogged(ctx, logg, "redis", redisClient.Close)

	inv, err := bootstrap.NewInvoices(bootstrap.InvoiceParams{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		Registry: prometheus.DefaultRegisterer,
	})
	if err != nil {
		return err
	}
	sweep, err := cron.NewInvoiceSweepJob(cron.InvoiceSweepJobParams{Logger: logg, Invoices: inv.Service})
	if err != nil {
		return err
	}
	prune, err := cron.NewOutboxPruneJob(cron.OutboxPruneParams{
		Logger:          logg,
		DB:              dbClient,
		Outbox:          outbox.NewRepository(dbClient.DB()),
		DeadLetters:     outbox.NewDeadLetters(dbClient.DB()),
		KeepEvents:      time.Duration(cfg.Cron.OutboxRetentionDays) * day,
		KeepDeadLetters: time.Duration(cfg.Cron.DLQRetentionDays) * day,
		MaxAttempts:     cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return err
	}

	lease, err := cron.NewRedisLease(redisClient, cfg.App.Env, instance.GetID(), cfg.Cron.LockTTL)
	if err != nil {
		return err
	}
	scheduler, err := cron.NewScheduler(cron.SchedulerParams{
		Logger:  logg,
		Lease:   lease,
		Jobs:    []cron.Job{sweep, prune},
		Metrics: metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		Every:   cfg.Cron.Interval,
	})
	if err != nil {
		return err
	}

	if once {
		logg.Info(ctx, "running a single tick")
		return scheduler.Tick(ctx)
	}
	logg.Info(logg.WithField(ctx, "every", cfg.Cron.Interval.String()), "cron worker started")
	err = scheduler.Run(ctx)
	logg.Info(ctx, "cron worker shutting down")
	return err
}

func closeLogged(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(logg.WithField(ctx, "resource", name), "close failed", err)
	}
}
