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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/marketplace-commissions/pkg/config"
	"github.com/angelmondragon/marketplace-commissions/pkg/db"
	"github.com/angelmondragon/marketplace-commissions/pkg/logger"
	"github.com/angelmondragon/marketplace-commissions/pkg/metrics"
	"github.com/angelmondragon/marketplace-commissions/pkg/migrate"
	"github.com/angelmondragon/marketplace-commissions/pkg/outbox"
	"github.com/angelmondragon/marketplace-commissions/pkg/outbox/registry"
	"github.com/angelmondragon/marketplace-commissions/pkg/pubsub"
)

const serviceName = "outbox-publisher"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.New(logger.Options{ServiceName: serviceName}).Error(context.Background(), "outbox publisher stopped", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	bootLog := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		bootLog.Warn(ctx, ".env file not found, relying on environment")
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
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": serviceName})

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		return err
	}
	defer closeLogged(ctx, logg, "database", dbClient.Close)
	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	catalog, err := registry.NewCatalog(cfg.PubSub)
	if err != nil {
		return err
	}
	psClient, err := pubsub.NewClient(ctx, cfg.GCP, catalog.Topics(), logg)
	if err != nil {
		return err
	}
	defer closeLogged(ctx, logg, "pubsub client", psClient.Close)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	relay, err := NewRelay(RelayParams{
		Outbox:      cfg.Outbox,
		Logger:      logg,
		DB:          dbClient,
		PubSub:      psClient,
		Rows:        outbox.NewRepository(dbClient.DB()),
		DeadLetters: outbox.NewDeadLetters(dbClient.DB()),
		Catalog:     catalog,
		Metrics:     metrics.NewRelayMetrics(reg),
	})
	if err != nil {
		return err
	}
	defer relay.Close()

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Outbox.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.Outbox.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return srv.Shutdown(drainCtx)
		})
	}
	g.Go(func() error {
		logg.Info(logg.WithField(gctx, "topics", catalog.Topics()), "starting outbox relay")
		defer logg.Info(ctx, "outbox relay shutting down")
		return relay.Run(gctx)
	})
	return g.Wait()
}

func closeLogged(ctx context.Context, logg *logger.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "error closing "+what, err)
	}
}
