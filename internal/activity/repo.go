package activity

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-commissions/pkg/db/models"
)

// Repository persists invoice activity entries. There is no update or delete.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.InvoiceActivity) error
	ListByInvoiceID(ctx context.Context, invoiceID uuid.UUID) ([]models.InvoiceActivity, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an activity repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create assigns the next per-invoice seq. Callers hold the invoice row
// lock; the unique (invoice_id, seq) index rejects any other interleaving.
func (r *repository) Create(ctx context.Context, entry *models.InvoiceActivity) error {
	var last int64
	if err := r.db.WithContext(ctx).
		Model(&models.InvoiceActivity{}).
		Where("invoice_id = ?", entry.InvoiceID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&last).Error; err != nil {
		return err
	}
	entry.Seq = last + 1
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListByInvoiceID(ctx context.Context, invoiceID uuid.UUID) ([]models.InvoiceActivity, error) {
	var entries []models.InvoiceActivity
	if err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("seq ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
