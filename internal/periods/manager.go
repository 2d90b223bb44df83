// Package periods keeps exactly one open billing period per store and rolls
// it over on settlement.
package periods

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-commissions/internal/orders"
	"github.com/angelmondragon/marketplace-commissions/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-commissions/pkg/errors"
)

// Manager owns the open/close lifecycle of store periods. Mutating calls take
// the caller's transaction so they commit together with the invoice change.
type Manager interface {
	GetOrOpenPeriod(ctx context.Context, tx *gorm.DB, storeID uuid.UUID) (*models.StorePeriod, error)
	LockOpen(ctx context.Context, tx *gorm.DB, storeID uuid.UUID) (*models.StorePeriod, error)
	CloseAndReopen(ctx context.Context, tx *gorm.DB, storeID, periodID uuid.UUID, closedAt time.Time) (*models.StorePeriod, *models.StorePeriod, error)
	ListPeriods(ctx context.Context, storeID uuid.UUID, limit int) ([]models.StorePeriod, error)
}

type manager struct {
	repo   Repository
	orders orders.Repository
	now    func() time.Time
}

// NewManager wires a period manager.
func NewManager(repo Repository, orderRepo orders.Repository, now func() time.Time) (Manager, error) {
	if repo == nil {
		return nil, fmt.Errorf("period repository required")
	}
	if orderRepo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if now == nil {
		now = time.Now
	}
	return &manager{repo: repo, orders: orderRepo, now: now}, nil
}

func (m *manager) GetOrOpenPeriod(ctx context.Context, tx *gorm.DB, storeID uuid.UUID) (*models.StorePeriod, error) {
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	repo := m.repo.WithTx(tx)

	period, err := repo.FindOpen(ctx, storeID)
	if err == nil {
		return period, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load open period")
	}

	now := m.now().UTC()
	start := now
	earliest, err := m.orders.WithTx(tx).EarliestUnlinkedCompletedAt(ctx, storeID, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read order ledger")
	}
	if earliest != nil {
		start = earliest.UTC()
	}

	candidate := &models.StorePeriod{
		ID:        uuid.New(),
		StoreID:   storeID,
		StartDate: start,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := repo.CreateOpen(ctx, candidate); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "open period")
	}

	// Either ours or a concurrent creator's row; both are the open period.
	period, err = repo.FindOpen(ctx, storeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload open period")
	}
	return period, nil
}

// LockOpen row-locks the store's open period without creating one. It
// returns nil when the store has no open period.
func (m *manager) LockOpen(ctx context.Context, tx *gorm.DB, storeID uuid.UUID) (*models.StorePeriod, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "locking a period requires a transaction")
	}
	period, err := m.repo.WithTx(tx).FindOpen(ctx, storeID)
	switch {
	case err == nil:
		return period, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock open period")
	}
}

func (m *manager) CloseAndReopen(ctx context.Context, tx *gorm.DB, storeID, periodID uuid.UUID, closedAt time.Time) (*models.StorePeriod, *models.StorePeriod, error) {
	if tx == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeInternal, "close and reopen requires a transaction")
	}
	repo := m.repo.WithTx(tx)
	closedAt = closedAt.UTC()

	open, err := repo.FindOpen(ctx, storeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, periodClosed(storeID, periodID)
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load open period")
	}
	if open.ID != periodID {
		return nil, nil, periodClosed(storeID, periodID)
	}
	if closedAt.Before(open.StartDate) {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "closing time precedes period start").
			WithDetails(map[string]any{"period_id": periodID, "start_date": open.StartDate, "closed_at": closedAt})
	}

	closed, err := repo.Close(ctx, periodID, closedAt)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "close period")
	}
	if !closed {
		return nil, nil, periodClosed(storeID, periodID)
	}
	open.EndDate = &closedAt
	open.UpdatedAt = closedAt

	next := &models.StorePeriod{
		ID:        uuid.New(),
		StoreID:   storeID,
		StartDate: closedAt,
		CreatedAt: closedAt,
		UpdatedAt: closedAt,
	}
	inserted, err := repo.CreateOpen(ctx, next)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "open next period")
	}
	if !inserted {
		return nil, nil, periodClosed(storeID, periodID)
	}
	return open, next, nil
}

func (m *manager) ListPeriods(ctx context.Context, storeID uuid.UUID, limit int) ([]models.StorePeriod, error) {
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	rows, err := m.repo.ListByStore(ctx, storeID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list periods")
	}
	return rows, nil
}

func periodClosed(storeID, periodID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodePeriodClosed, "period is not the store's open period").
		WithDetails(map[string]any{"store_id": storeID, "period_id": periodID})
}
