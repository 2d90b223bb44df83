// Package orders reads completed orders from the order ledger. Orders are
// owned upstream; nothing here mutates them.
package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-commissions/pkg/db/models"
	"github.com/angelmondragon/marketplace-commissions/pkg/enums"
)

// Repository is the read surface of the order ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListUnlinkedCompleted(ctx context.Context, storeID uuid.UUID, before time.Time) ([]models.Order, error)
	EarliestUnlinkedCompletedAt(ctx context.Context, storeID uuid.UUID, before time.Time) (*time.Time, error)
	SummarizeUnlinkedCompleted(ctx context.Context, storeID uuid.UUID, before time.Time) (UnlinkedSummary, error)
	ListStoresWithUnlinkedOrders(ctx context.Context, before time.Time) ([]uuid.UUID, error)
}

// UnlinkedSummary aggregates completed orders not yet attached to an invoice.
type UnlinkedSummary struct {
	OrderCount   int64
	RevenueCents int64
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an order ledger repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListUnlinkedCompleted(ctx context.Context, storeID uuid.UUID, before time.Time) ([]models.Order, error) {
	var rows []models.Order
	err := r.unlinkedCompleted(ctx, storeID, before).
		Order("orders.completed_at ASC").
		Order("orders.id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) EarliestUnlinkedCompletedAt(ctx context.Context, storeID uuid.UUID, before time.Time) (*time.Time, error) {
	var rows []models.Order
	err := r.unlinkedCompleted(ctx, storeID, before).
		Order("orders.completed_at ASC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].CompletedAt, nil
}

func (r *repository) SummarizeUnlinkedCompleted(ctx context.Context, storeID uuid.UUID, before time.Time) (UnlinkedSummary, error) {
	var summary UnlinkedSummary
	err := r.unlinkedCompleted(ctx, storeID, before).
		Select("COUNT(*) AS order_count, COALESCE(SUM(orders.final_total_cents), 0) AS revenue_cents").
		Scan(&summary).Error
	return summary, err
}

func (r *repository) ListStoresWithUnlinkedOrders(ctx context.Context, before time.Time) ([]uuid.UUID, error) {
	var storeIDs []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("orders.status = ?", enums.OrderStatusCompleted).
		Where("orders.completed_at IS NOT NULL AND orders.completed_at < ?", before).
		Where(notLinked).
		Distinct().
		Order("orders.store_id").
		Pluck("orders.store_id", &storeIDs).Error
	return storeIDs, err
}

const notLinked = "NOT EXISTS (SELECT 1 FROM invoice_order_links l WHERE l.store_id = orders.store_id AND l.order_id = orders.id)"

func (r *repository) unlinkedCompleted(ctx context.Context, storeID uuid.UUID, before time.Time) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("orders.store_id = ?", storeID).
		Where("orders.status = ?", enums.OrderStatusCompleted).
		Where("orders.completed_at IS NOT NULL AND orders.completed_at < ?", before).
		Where(notLinked)
}
