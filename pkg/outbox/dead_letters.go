package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-commissions/pkg/db/models"
	"github.com/angelmondragon/marketplace-commissions/pkg/enums"
)

const maxErrorLen = 1024

// DeadLetters keeps a copy of every outbox row the relay gave up on.
type DeadLetters struct {
	db *gorm.DB
}

func NewDeadLetters(db *gorm.DB) *DeadLetters {
	return &DeadLetters{db: db}
}

// Record copies row into outbox_dlq with the reason and final error. A row
// that is already dead-lettered is left as first recorded.
func (d *DeadLetters) Record(tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, at time.Time) error {
	if tx == nil {
		return errNoTx
	}
	entry := models.OutboxDLQ{
		ID:            uuid.New(),
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   reason,
		AttemptCount:  row.AttemptCount,
		FailedAt:      at.UTC(),
	}
	if cause != nil {
		msg := clip(cause.Error())
		entry.ErrorMessage = &msg
	}
	return tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(&entry).Error
}

// Find returns the dead letter for an outbox row id, or nil.
func (d *DeadLetters) Find(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var entry models.OutboxDLQ
	err := d.db.WithContext(ctx).Where("event_id = ?", eventID).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Recent lists the newest dead letters first.
func (d *DeadLetters) Recent(ctx context.Context, limit int) ([]models.OutboxDLQ, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.OutboxDLQ
	err := d.db.WithContext(ctx).Order("failed_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// Prune deletes dead letters recorded before cutoff.
func (d *DeadLetters) Prune(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		tx = d.db
	}
	res := tx.WithContext(ctx).Where("failed_at < ?", cutoff).Delete(&models.OutboxDLQ{})
	return res.RowsAffected, res.Error
}

func clip(msg string) string {
	if len(msg) <= maxErrorLen {
		return msg
	}
	return msg[:maxErrorLen]
}
