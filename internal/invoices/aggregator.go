package invoices

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-commissions/internal/activity"
	"github.com/angelmondragon/marketplace-commissions/internal/commission"
	"github.com/angelmondragon/marketplace-commissions/pkg/db/models"
	"github.com/angelmondragon/marketplace-commissions/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-commissions/pkg/errors"
	"github.com/angelmondragon/marketplace-commissions/pkg/metrics"
	"github.com/angelmondragon/marketplace-commissions/pkg/outbox"
	"github.com/angelmondragon/marketplace-commissions/pkg/outbox/payloads"
)

var errVersionConflict = errors.New("invoice version changed during sync")

type syncOutcome struct {
	invoice *models.Invoice
	result  string
	linked  int
}

// SyncInvoice folds every unlinked completed order of the store into the
// invoice of its open period. Safe to call repeatedly and concurrently.
func (s *service) SyncInvoice(ctx context.Context, storeID uuid.UUID) (*models.Invoice, error) {
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	ctx = s.logg.WithStoreID(ctx, storeID.String())

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		var out syncOutcome
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			out, err = s.syncOnce(ctx, tx, storeID)
			return err
		})
		if errors.Is(err, errVersionConflict) {
			s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt), "invoice sync lost a version race, retrying")
			continue
		}
		if err != nil {
			s.metrics.ObserveSync(metrics.SyncFailed, 0)
			return nil, err
		}
		s.metrics.ObserveSync(out.result, out.linked)
		if out.linked > 0 {
			s.logg.Info(s.logg.WithFields(s.logCtx(ctx, out.invoice), map[string]any{
				"linked_orders": out.linked,
				"total_revenue": out.invoice.TotalRevenueCents,
				"fee_amount":    out.invoice.FeeAmountCents,
			}), "invoice synced")
		}
		return out.invoice, nil
	}

	s.metrics.ObserveSync(metrics.SyncFailed, 0)
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "invoice sync kept conflicting with concurrent writers").
		WithDetails(map[string]any{"store_id": storeID, "attempts": s.maxAttempts})
}

func (s *service) syncOnce(ctx context.Context, tx *gorm.DB, storeID uuid.UUID) (syncOutcome, error) {
	repo := s.repo.WithTx(tx)

	inv, created, err := s.ensureInvoice(ctx, tx, storeID)
	if err != nil {
		return syncOutcome{}, err
	}
	result := metrics.SyncUnchanged
	if created {
		result = metrics.SyncCreated
	}
	if inv.Status != enums.InvoiceStatusAwaitingPayment {
		// Frozen for verification; new orders wait for the next period.
		return syncOutcome{invoice: inv, result: metrics.SyncFrozen}, nil
	}

	rate, err := invoiceRate(inv)
	if err != nil {
		return syncOutcome{}, err
	}

	now := s.clock()
	pending, err := s.orders.WithTx(tx).ListUnlinkedCompleted(ctx, storeID, now)
	if err != nil {
		return syncOutcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read order ledger")
	}

	linked := 0
	for _, order := range pending {
		orderFee, err := commission.Fee(order.FinalTotalCents, rate)
		if err != nil {
			return syncOutcome{}, err
		}
		inserted, err := repo.InsertLink(ctx, &models.InvoiceOrderLink{
			ID:                uuid.New(),
			InvoiceID:         inv.ID,
			StoreID:           storeID,
			OrderID:           order.ID,
			OrderRevenueCents: order.FinalTotalCents,
			OrderFeeCents:     orderFee,
			CreatedAt:         now,
		})
		if err != nil {
			return syncOutcome{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "link order")
		}
		if inserted {
			linked++
		}
	}
	if linked == 0 {
		return syncOutcome{invoice: inv, result: result}, nil
	}

	totals, err := repo.SumLinks(ctx, inv.ID)
	if err != nil {
		return syncOutcome{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sum invoice links")
	}
	fee, err := commission.Fee(totals.RevenueCents, rate)
	if err != nil {
		return syncOutcome{}, err
	}

	ok, err := repo.UpdateVersioned(ctx, inv.ID, inv.Version, map[string]any{
		"total_revenue_cents": totals.RevenueCents,
		"fee_amount_cents":    fee,
		"updated_at":          now,
	})
	if err != nil {
		return syncOutcome{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update invoice totals")
	}
	if !ok {
		return syncOutcome{}, errVersionConflict
	}

	updated, err := s.loadInvoice(ctx, repo, inv.ID)
	if err != nil {
		return syncOutcome{}, err
	}
	if !created {
		result = metrics.SyncUpdated
	}
	return syncOutcome{invoice: updated, result: result, linked: linked}, nil
}

// ensureInvoice returns the open period's invoice, creating it on first use.
func (s *service) ensureInvoice(ctx context.Context, tx *gorm.DB, storeID uuid.UUID) (*models.Invoice, bool, error) {
	repo := s.repo.WithTx(tx)

	period, err := s.periods.GetOrOpenPeriod(ctx, tx, storeID)
	if err != nil {
		return nil, false, err
	}

	inv, err := repo.FindByPeriodID(ctx, period.ID)
	if err == nil {
		return inv, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load period invoice")
	}

	now := s.clock()
	candidate := &models.Invoice{
		ID:             uuid.New(),
		StoreID:        storeID,
		PeriodID:       period.ID,
		PeriodStart:    period.StartDate.UTC(),
		CommissionRate: s.rate.Decimal(),
		Currency:       s.currency,
		Status:         enums.InvoiceStatusAwaitingPayment,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	inserted, err := repo.CreateIfAbsent(ctx, candidate)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create invoice")
	}
	if !inserted {
		inv, err := repo.FindByPeriodID(ctx, period.ID)
		if err != nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload period invoice")
		}
		return inv, false, nil
	}

	if _, err := s.activity.Append(ctx, tx, activity.AppendInput{
		InvoiceID:   candidate.ID,
		Action:      enums.InvoiceActivityCreated,
		Description: "Invoice opened for billing period",
		Metadata: map[string]any{
			"period_id":       period.ID,
			"period_start":    period.StartDate.UTC(),
			"commission_rate": s.rate.String(),
		},
		OccurredAt: now,
	}); err != nil {
		return nil, false, err
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventInvoiceCreated,
		AggregateType: enums.AggregateInvoice,
		AggregateID:   candidate.ID,
		OccurredAt:    now,
		Data: payloads.InvoiceCreatedEvent{
			InvoiceID:      candidate.ID,
			StoreID:        storeID,
			PeriodID:       period.ID,
			PeriodStart:    period.StartDate.UTC(),
			CommissionRate: s.rate.String(),
			Currency:       s.currency,
		},
	}); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue invoice_created event")
	}
	// Re-read so the rate is the value the column stored, not the in-memory one.
	stored, err := repo.FindByPeriodID(ctx, period.ID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload created invoice")
	}
	s.logg.Info(s.logCtx(ctx, stored), "invoice created")
	return stored, true, nil
}

// Estimate reads pending orders without linking them.
func (s *service) Estimate(ctx context.Context, storeID uuid.UUID) (*Estimate, error) {
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	now := s.clock()
	est := &Estimate{StoreID: storeID, AsOf: now}

	rate := s.rate
	current, err := s.repo.FindCurrentForStore(ctx, storeID)
	switch {
	case err == nil:
		id := current.ID
		est.InvoiceID = &id
		est.InvoicedRevenueCents = current.TotalRevenueCents
		est.InvoicedFeeCents = current.FeeAmountCents
		if current.Status == enums.InvoiceStatusAwaitingPayment {
			if rate, err = invoiceRate(current); err != nil {
				return nil, err
			}
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load current invoice")
	}

	summary, err := s.orders.SummarizeUnlinkedCompleted(ctx, storeID, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read order ledger")
	}
	fee, err := commission.Fee(summary.RevenueCents, rate)
	if err != nil {
		return nil, err
	}
	est.PendingOrderCount = summary.OrderCount
	est.PendingRevenueCents = summary.RevenueCents
	est.PendingFeeCents = fee
	est.CommissionRate = rate.String()
	return est, nil
}

// GenerateInvoice is the authorized entry point for an explicit sync.
func (s *service) GenerateInvoice(ctx context.Context, actor Actor, storeID uuid.UUID) (*InvoiceDetail, error) {
	if err := actor.Authorize(CapabilitySync, storeID); err != nil {
		return nil, err
	}
	inv, err := s.SyncInvoice(ctx, storeID)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, inv)
}

// SweepAll syncs every store that has completed orders waiting for an
// invoice. Per-store failures are collected and do not stop the sweep.
func (s *service) SweepAll(ctx context.Context) (*SweepResult, error) {
	storeIDs, err := s.orders.ListStoresWithUnlinkedOrders(ctx, s.clock())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stores with pending orders")
	}

	result := &SweepResult{StoresScanned: len(storeIDs)}
	var errs error
	for _, storeID := range storeIDs {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}
		if _, err := s.SyncInvoice(ctx, storeID); err != nil {
			result.Failed = append(result.Failed, storeID)
			errs = multierr.Append(errs, pkgerrors.Wrap(pkgerrors.As(err).Code(), err, "sync store "+storeID.String()))
			continue
		}
		result.StoresSynced++
	}
	return result, errs
}

func (s *service) detail(ctx context.Context, inv *models.Invoice) (*InvoiceDetail, error) {
	est, err := s.Estimate(ctx, inv.StoreID)
	if err != nil {
		return nil, err
	}
	return &InvoiceDetail{Invoice: ToDTO(inv), Estimate: est}, nil
}
