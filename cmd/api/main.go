package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/marketplace-commissions/api/routes"
	"github.com/angelmondragon/marketplace-commissions/internal/bootstrap"
	"github.com/angelmondragon/marketplace-commissions/pkg/config"
	"github.com/angelmondragon/marketplace-commissions/pkg/db"
	"github.com/angelmondragon/marketplace-commissions/pkg/instance"
	"github.com/angelmondragon/marketplace-commissions/pkg/logger"
	"github.com/angelmondragon/marketplace-commissions/pkg/migrate"
	"github.com/angelmondragon/marketplace-commissions/pkg/redis"
)

const (
	serviceName     = "api"
	shutdownTimeout = 15 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.New(logger.Options{ServiceName: serviceName}).Error(context.Background(), "api server stopped", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	if err := godotenv.Load(); err != nil {
		logger.New(logger.Options{ServiceName: serviceName}).Warn(ctx, ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		return err
	}
	defer closeLogged(ctx, logg, "database", dbClient.Close)
	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	deps := routes.Dependencies{DB: dbClient}
	if cfg.Redis.Enabled() {
		if deps.Redis, err = redis.New(ctx, cfg.Redis, logg); err != nil {
			return err
		}
		defer closeLogged(ctx, logg, "redis", deps.Redis.Close)
	} else {
		logg.Warn(ctx, "redis not configured, idempotency and rate limiting disabled")
	}

	gcsClient, err := bootstrap.MaybeGCS(ctx, cfg, logg)
	if err != nil {
		return err
	}
	if gcsClient != nil {
		deps.GCS = gcsClient
		defer closeLogged(ctx, logg, "gcs", gcsClient.Close)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	deps.Gatherer = reg

	inv, err := bootstrap.NewInvoices(bootstrap.InvoiceParams{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		GCS:      gcsClient,
		Registry: reg,
	})
	if err != nil {
		return err
	}
	deps.Invoices = inv.Service

	return serve(ctx, cfg, logg, routes.NewRouter(cfg, logg, deps))
}

// serve runs the HTTP server until ctx is cancelled, then drains it.
func serve(ctx context.Context, cfg *config.Config, logg *logger.Logger, handler http.Handler) error {
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     server.Addr,
		"instance": instance.GetID(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logg.Info(logCtx, "starting api server")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logg.Info(logCtx, "shutting down api server")
		drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(drainCtx)
	})
	return g.Wait()
}

func closeLogged(ctx context.Context, logg *logger.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "error closing "+what, err)
	}
}
