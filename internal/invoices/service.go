// Package invoices aggregates completed orders into per-period commission
// invoices and drives their payment verification lifecycle.
package invoices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-commissions/internal/activity"
	"github.com/angelmondragon/marketplace-commissions/internal/commission"
	"github.com/angelmondragon/marketplace-commissions/internal/orders"
	"github.com/angelmondragon/marketplace-commissions/internal/periods"
	"github.com/angelmondragon/marketplace-commissions/pkg/db/models"
	"github.com/angelmondragon/marketplace-commissions/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-commissions/pkg/errors"
	"github.com/angelmondragon/marketplace-commissions/pkg/logger"
	"github.com/angelmondragon/marketplace-commissions/pkg/metrics"
	"github.com/angelmondragon/marketplace-commissions/pkg/outbox"
)

const defaultMaxSyncAttempts = 3

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type proofStorage interface {
	ObjectExists(ctx context.Context, bucket, object string) (bool, error)
	SignedURL(bucket, object, contentType string, expires time.Duration) (string, error)
}

// Service is the invoicing surface used by controllers and the admin CLI.
type Service interface {
	SyncInvoice(ctx context.Context, storeID uuid.UUID) (*models.Invoice, error)
	GenerateInvoice(ctx context.Context, actor Actor, storeID uuid.UUID) (*InvoiceDetail, error)
	Estimate(ctx context.Context, storeID uuid.UUID) (*Estimate, error)
	SweepAll(ctx context.Context) (*SweepResult, error)

	UploadProof(ctx context.Context, actor Actor, input UploadProofInput) (*models.Invoice, error)
	Confirm(ctx context.Context, actor Actor, invoiceID uuid.UUID) (*models.Invoice, error)
	Reject(ctx context.Context, actor Actor, input RejectInput) (*models.Invoice, error)
	Verify(ctx context.Context, actor Actor, input VerifyInput) (*models.Invoice, error)

	GetInvoice(ctx context.Context, actor Actor, id uuid.UUID) (*InvoiceDetail, error)
	ListInvoices(ctx context.Context, actor Actor, filter ListFilter) (*ListResult, error)
	Activity(ctx context.Context, actor Actor, invoiceID uuid.UUID) ([]models.InvoiceActivity, error)
	ProofUploadURL(ctx context.Context, actor Actor, invoiceID uuid.UUID, contentType string) (*UploadURL, error)
}

// ProofStorageConfig describes where store proofs live. A nil Client
// disables object checks and signed upload URLs.
type ProofStorageConfig struct {
	Client          proofStorage
	Bucket          string
	Prefix          string
	UploadURLExpiry time.Duration
	RequestTimeout  time.Duration
	VerifyObjects   bool
}

// ServiceParams groups the collaborators of the invoice service.
type ServiceParams struct {
	Tx              txRunner
	Repo            Repository
	Orders          orders.Repository
	Periods         periods.Manager
	Activity        activity.Service
	Outbox          outboxEmitter
	Rate            commission.Rate
	Currency        enums.Currency
	MaxSyncAttempts int
	Storage         ProofStorageConfig
	Metrics         *metrics.InvoiceMetrics
	Logger          *logger.Logger
	Now             func() time.Time
}

type service struct {
	tx          txRunner
	repo        Repository
	orders      orders.Repository
	periods     periods.Manager
	activity    activity.Service
	outbox      outboxEmitter
	rate        commission.Rate
	currency    enums.Currency
	maxAttempts int
	storage     ProofStorageConfig
	metrics     *metrics.InvoiceMetrics
	logg        *logger.Logger
	now         func() time.Time
}

// NewService validates and wires the invoice service.
func NewService(p ServiceParams) (Service, error) {
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Repo == nil {
		return nil, fmt.Errorf("invoice repository required")
	}
	if p.Orders == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if p.Periods == nil {
		return nil, fmt.Errorf("period manager required")
	}
	if p.Activity == nil {
		return nil, fmt.Errorf("activity service required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if !p.Currency.IsValid() {
		return nil, fmt.Errorf("invalid currency %q", p.Currency)
	}
	if p.Storage.Client != nil && strings.TrimSpace(p.Storage.Bucket) == "" {
		return nil, fmt.Errorf("proof bucket required when storage is configured")
	}
	if p.MaxSyncAttempts <= 0 {
		p.MaxSyncAttempts = defaultMaxSyncAttempts
	}
	if p.Storage.UploadURLExpiry <= 0 {
		p.Storage.UploadURLExpiry = 15 * time.Minute
	}
	if p.Storage.RequestTimeout <= 0 {
		p.Storage.RequestTimeout = 5 * time.Second
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &service{
		tx:          p.Tx,
		repo:        p.Repo,
		orders:      p.Orders,
		periods:     p.Periods,
		activity:    p.Activity,
		outbox:      p.Outbox,
		rate:        p.Rate,
		currency:    p.Currency,
		maxAttempts: p.MaxSyncAttempts,
		storage:     p.Storage,
		metrics:     p.Metrics,
		logg:        p.Logger,
		now:         p.Now,
	}, nil
}

func (s *service) clock() time.Time {
	return s.now().UTC()
}

func (s *service) loadInvoice(ctx context.Context, repo Repository, id uuid.UUID) (*models.Invoice, error) {
	inv, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found").
				WithDetails(map[string]any{"invoice_id": id})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load invoice")
	}
	return inv, nil
}

func (s *service) lockInvoice(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Invoice, error) {
	inv, err := s.repo.WithTx(tx).FindByIDForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found").
				WithDetails(map[string]any{"invoice_id": id})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock invoice")
	}
	return inv, nil
}

func invoiceRate(inv *models.Invoice) (commission.Rate, error) {
	rate, err := commission.NewRate(inv.CommissionRate)
	if err != nil {
		return commission.Rate{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "invoice carries invalid commission rate").
			WithDetails(map[string]any{"invoice_id": inv.ID, "rate": inv.CommissionRate.String()})
	}
	return rate, nil
}

func (s *service) logCtx(ctx context.Context, inv *models.Invoice) context.Context {
	ctx = s.logg.WithStoreID(ctx, inv.StoreID.String())
	return s.logg.WithInvoiceID(ctx, inv.ID.String())
}
