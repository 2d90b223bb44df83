package invoices

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/angelmondragon/marketplace-commissions/pkg/db"
	"github.com/angelmondragon/marketplace-commissions/pkg/db/models"
	"github.com/angelmondragon/marketplace-commissions/pkg/enums"
)

// Repository persists invoices, their order links and payment proofs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	FindByPeriodID(ctx context.Context, periodID uuid.UUID) (*models.Invoice, error)
	FindCurrentForStore(ctx context.Context, storeID uuid.UUID) (*models.Invoice, error)
	CreateIfAbsent(ctx context.Context, invoice *models.Invoice) (bool, error)
	UpdateVersioned(ctx context.Context, id uuid.UUID, expectedVersion int, changes map[string]any) (bool, error)
	List(ctx context.Context, q listQuery) ([]models.Invoice, int64, error)

	InsertLink(ctx context.Context, link *models.InvoiceOrderLink) (bool, error)
	FindLinkByOrderID(ctx context.Context, orderID uuid.UUID) (*models.InvoiceOrderLink, error)
	SumLinks(ctx context.Context, invoiceID uuid.UUID) (LinkTotals, error)

	CreateProof(ctx context.Context, proof *models.PaymentProof) error
	FindActiveProof(ctx context.Context, invoiceID uuid.UUID) (*models.PaymentProof, error)
	SupersedeProofs(ctx context.Context, invoiceID uuid.UUID, at time.Time) error
	RejectProof(ctx context.Context, proofID uuid.UUID, reason string, by uuid.UUID, at time.Time) error
}

// LinkTotals is the authoritative sum of an invoice's order links.
type LinkTotals struct {
	OrderCount   int64
	RevenueCents int64
	FeeCents     int64
}

type listQuery struct {
	StoreID *uuid.UUID
	Status  *enums.InvoiceStatus
	Offset  int
	Limit   int
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a gorm-backed invoice repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var inv models.Invoice
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&inv).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var inv models.Invoice
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&inv).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repository) FindByPeriodID(ctx context.Context, periodID uuid.UUID) (*models.Invoice, error) {
	var inv models.Invoice
	if err := r.db.WithContext(ctx).Where("period_id = ?", periodID).First(&inv).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

// FindCurrentForStore returns the newest invoice that is not settled yet.
func (r *repository) FindCurrentForStore(ctx context.Context, storeID uuid.UUID) (*models.Invoice, error) {
	var inv models.Invoice
	err := r.db.WithContext(ctx).
		Where("store_id = ? AND status <> ?", storeID, enums.InvoiceStatusSettled).
		Order("created_at DESC").
		First(&inv).Error
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// CreateIfAbsent inserts the invoice unless its period already has one.
// It reports whether this call inserted the row.
func (r *repository) CreateIfAbsent(ctx context.Context, invoice *models.Invoice) (bool, error) {
	if invoice.ID == uuid.Nil {
		invoice.ID = uuid.New()
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "period_id"}},
			DoNothing: true,
		}).
		Create(invoice)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateVersioned applies changes only when the stored version matches and
// bumps the version. A false result means another writer got there first.
func (r *repository) UpdateVersioned(ctx context.Context, id uuid.UUID, expectedVersion int, changes map[string]any) (bool, error) {
	updates := make(map[string]any, len(changes)+2)
	for k, v := range changes {
		updates[k] = v
	}
	updates["version"] = gorm.Expr("version + 1")
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) List(ctx context.Context, q listQuery) ([]models.Invoice, int64, error) {
	base := r.db.WithContext(ctx).Model(&models.Invoice{})
	if q.StoreID != nil {
		base = base.Where("store_id = ?", *q.StoreID)
	}
	if q.Status != nil {
		base = base.Where("status = ?", *q.Status)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Invoice
	err := base.Session(&gorm.Session{}).
		Order("created_at DESC").
		Order("id DESC").
		Offset(q.Offset).
		Limit(q.Limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// InsertLink inserts the link unless (store_id, order_id) is already linked.
// It reports whether this call inserted the row.
func (r *repository) InsertLink(ctx context.Context, link *models.InvoiceOrderLink) (bool, error) {
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "store_id"}, {Name: "order_id"}},
			DoNothing: true,
		}).
		Create(link)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) FindLinkByOrderID(ctx context.Context, orderID uuid.UUID) (*models.InvoiceOrderLink, error) {
	var link models.InvoiceOrderLink
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&link).Error; err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *repository) SumLinks(ctx context.Context, invoiceID uuid.UUID) (LinkTotals, error) {
	var totals LinkTotals
	err := r.db.WithContext(ctx).
		Model(&models.InvoiceOrderLink{}).
		Select("COUNT(*) AS order_count, COALESCE(SUM(order_revenue_cents), 0) AS revenue_cents, COALESCE(SUM(order_fee_cents), 0) AS fee_cents").
		Where("invoice_id = ?", invoiceID).
		Scan(&totals).Error
	return totals, err
}

func (r *repository) CreateProof(ctx context.Context, proof *models.PaymentProof) error {
	if proof.ID == uuid.Nil {
		proof.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(proof).Error
}

// FindActiveProof returns the latest proof that has not been superseded.
func (r *repository) FindActiveProof(ctx context.Context, invoiceID uuid.UUID) (*models.PaymentProof, error) {
	var proof models.PaymentProof
	err := r.db.WithContext(ctx).
		Where("invoice_id = ? AND superseded_at IS NULL", invoiceID).
		Order("uploaded_at DESC").
		First(&proof).Error
	if err != nil {
		return nil, err
	}
	return &proof, nil
}

func (r *repository) SupersedeProofs(ctx context.Context, invoiceID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentProof{}).
		Where("invoice_id = ? AND superseded_at IS NULL", invoiceID).
		Update("superseded_at", at).Error
}

func (r *repository) RejectProof(ctx context.Context, proofID uuid.UUID, reason string, by uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentProof{}).
		Where("id = ?", proofID).
		Updates(map[string]any{
			"rejected":         true,
			"rejection_reason": reason,
			"rejected_at":      at,
			"rejected_by":      by,
		}).Error
}
