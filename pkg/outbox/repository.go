package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-commissions/pkg/db/models"
)

var errNoTx = errors.New("outbox: transaction required")

// Repository owns outbox_events. Writers insert inside their business
// transaction; the relay claims and marks rows inside its own.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, row models.OutboxEvent) error {
	if tx == nil {
		return errNoTx
	}
	return tx.Create(&row).Error
}

// Claim returns up to limit unpublished rows below maxAttempts, oldest first.
// On Postgres the rows stay locked (SKIP LOCKED) until tx ends, so relays
// running side by side never deliver the same row.
func (r *Repository) Claim(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errNoTx
	}
	q := tx.Where("published_at IS NULL")
	if maxAttempts > 0 {
		q = q.Where("attempt_count < ?", maxAttempts)
	}
	if tx.Dialector != nil && tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate, Options: clause.LockingOptionsSkipLocked})
	}
	var rows []models.OutboxEvent
	err := q.Order("created_at, id").Limit(limit).Find(&rows).Error
	return rows, err
}

// ListByAggregate returns every event recorded for an aggregate, oldest first.
func (r *Repository) ListByAggregate(ctx context.Context, aggregateID uuid.UUID) ([]models.OutboxEvent, error) {
	var rows []models.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("aggregate_id = ?", aggregateID).
		Order("created_at, id").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkPublished(tx *gorm.DB, id uuid.UUID, at time.Time) error {
	return r.update(tx, id, map[string]any{"published_at": at.UTC()})
}

// MarkFailed counts one failed delivery.
func (r *Repository) MarkFailed(tx *gorm.DB, id uuid.UUID, cause error) error {
	return r.update(tx, id, map[string]any{
		"last_error":    clip(cause.Error()),
		"attempt_count": gorm.Expr("attempt_count + 1"),
	})
}

// MarkTerminal pins attempt_count at ceiling so Claim never returns the row again.
func (r *Repository) MarkTerminal(tx *gorm.DB, id uuid.UUID, cause error, ceiling int) error {
	updates := map[string]any{"attempt_count": ceiling}
	if cause != nil {
		updates["last_error"] = clip(cause.Error())
	}
	return r.update(tx, id, updates)
}

// Prune deletes rows created before cutoff that are finished: published, or
// at or above the terminal attempt count. Pending rows are never removed.
func (r *Repository) Prune(ctx context.Context, tx *gorm.DB, cutoff time.Time, terminalAttempts int) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	res := tx.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Where("published_at IS NOT NULL OR attempt_count >= ?", terminalAttempts).
		Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

func (r *Repository) update(tx *gorm.DB, id uuid.UUID, updates map[string]any) error {
	if tx == nil {
		return errNoTx
	}
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(updates).Error
}
