package periods

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/angelmondragon/marketplace-commissions/pkg/db"
	"github.com/angelmondragon/marketplace-commissions/pkg/db/models"
)

// Repository persists store billing periods.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOpen(ctx context.Context, storeID uuid.UUID) (*models.StorePeriod, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.StorePeriod, error)
	CreateOpen(ctx context.Context, period *models.StorePeriod) (bool, error)
	Close(ctx context.Context, periodID uuid.UUID, closedAt time.Time) (bool, error)
	ListByStore(ctx context.Context, storeID uuid.UUID, limit int) ([]models.StorePeriod, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a period repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindOpen returns the open period and, on Postgres, row-locks it.
func (r *repository) FindOpen(ctx context.Context, storeID uuid.UUID) (*models.StorePeriod, error) {
	var period models.StorePeriod
	err := dbpkg.ForUpdate(r.db.WithContext(ctx)).
		Where("store_id = ? AND end_date IS NULL", storeID).
		First(&period).Error
	if err != nil {
		return nil, err
	}
	return &period, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.StorePeriod, error) {
	var period models.StorePeriod
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&period).Error; err != nil {
		return nil, err
	}
	return &period, nil
}

// CreateOpen inserts the period unless the store already has an open one.
// It reports whether this call inserted the row.
func (r *repository) CreateOpen(ctx context.Context, period *models.StorePeriod) (bool, error) {
	if period.ID == uuid.Nil {
		period.ID = uuid.New()
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:     []clause.Column{{Name: "store_id"}},
			TargetWhere: clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "end_date IS NULL"}}},
			DoNothing:   true,
		}).
		Create(period)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Close sets end_date only while the period is still open.
func (r *repository) Close(ctx context.Context, periodID uuid.UUID, closedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.StorePeriod{}).
		Where("id = ? AND end_date IS NULL", periodID).
		Updates(map[string]any{
			"end_date":   closedAt,
			"updated_at": closedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListByStore(ctx context.Context, storeID uuid.UUID, limit int) ([]models.StorePeriod, error) {
	var rows []models.StorePeriod
	q := r.db.WithContext(ctx).
		Where("store_id = ?", storeID).
		Order("start_date DESC").
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, err
}
