// Package bootstrap assembles the invoice service from configuration so the
// API server and the admin CLI wire it the same way.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marketplace-commissions/internal/activity"
	"github.com/angelmondragon/marketplace-commissions/internal/commission"
	"github.com/angelmondragon/marketplace-commissions/internal/invoices"
	"github.com/angelmondragon/marketplace-commissions/internal/orders"
	"github.com/angelmondragon/marketplace-commissions/internal/periods"
	"github.com/angelmondragon/marketplace-commissions/pkg/config"
	"github.com/angelmondragon/marketplace-commissions/pkg/db"
	"github.com/angelmondragon/marketplace-commissions/pkg/enums"
	"github.com/angelmondragon/marketplace-commissions/pkg/logger"
	"github.com/angelmondragon/marketplace-commissions/pkg/metrics"
	"github.com/angelmondragon/marketplace-commissions/pkg/outbox"
	"github.com/angelmondragon/marketplace-commissions/pkg/storage/gcs"
)

// InvoiceParams carries the runtime handles the invoice service depends on.
// GCS may be nil when proof storage is not configured.
type InvoiceParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *db.Client
	GCS      *gcs.Client
	Registry prometheus.Registerer
	Now      func() time.Time
}

// Invoices is everything a caller needs to drive invoicing.
type Invoices struct {
	Service invoices.Service
	Repo    invoices.Repository
	Periods periods.Manager
}

// NewInvoices builds the repositories, period manager and invoice service.
func NewInvoices(p InvoiceParams) (*Invoices, error) {
	if p.Config == nil || p.DB == nil {
		return nil, fmt.Errorf("config and database are required")
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	cfg := p.Config
	conn := p.DB.DB()

	rate, err := commission.ParseRate(cfg.Commission.Rate)
	if err != nil {
		return nil, err
	}
	currency, err := enums.ParseCurrency(cfg.Commission.Currency)
	if err != nil {
		return nil, err
	}

	orderRepo := orders.NewRepository(conn)
	periodManager, err := periods.NewManager(periods.NewRepository(conn), orderRepo, p.Now)
	if err != nil {
		return nil, err
	}
	activitySvc, err := activity.NewService(activity.NewRepository(conn))
	if err != nil {
		return nil, err
	}

	storage := invoices.ProofStorageConfig{
		Prefix:          cfg.GCS.ProofPrefix,
		UploadURLExpiry: cfg.GCS.UploadURLExpiry,
		RequestTimeout:  cfg.GCS.RequestTimeout,
		VerifyObjects:   cfg.FeatureFlags.VerifyProofObjects,
	}
	if p.GCS != nil {
		storage.Client = p.GCS
		storage.Bucket = p.GCS.DefaultBucket()
	}

	repo := invoices.NewRepository(conn)
	svc, err := invoices.NewService(invoices.ServiceParams{
		Tx:              p.DB,
		Repo:            repo,
		Orders:          orderRepo,
		Periods:         periodManager,
		Activity:        activitySvc,
		Outbox:          outbox.NewEmitter(outbox.NewRepository(conn), p.Logger),
		Rate:            rate,
		Currency:        currency,
		MaxSyncAttempts: cfg.Commission.MaxSyncAttempts,
		Storage:         storage,
		Metrics:         metrics.NewInvoiceMetrics(p.Registry),
		Logger:          p.Logger,
		Now:             p.Now,
	})
	if err != nil {
		return nil, err
	}
	return &Invoices{Service: svc, Repo: repo, Periods: periodManager}, nil
}

// MaybeGCS connects to proof storage when a bucket is configured.
func MaybeGCS(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*gcs.Client, error) {
	if !cfg.GCS.Enabled() {
		logg.Warn(ctx, "proof storage not configured, signed uploads disabled")
		return nil, nil
	}
	return gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
}
