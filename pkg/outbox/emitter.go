package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-commissions/pkg/db/models"
	"github.com/angelmondragon/marketplace-commissions/pkg/enums"
	"github.com/angelmondragon/marketplace-commissions/pkg/logger"
)

// DomainEvent is a state change to be published after the surrounding transaction commits.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

// Emitter queues domain events in outbox_events.
type Emitter struct {
	repo *Repository
	logg *logger.Logger
}

func NewEmitter(repo *Repository, logg *logger.Logger) *Emitter {
	return &Emitter{repo: repo, logg: logg}
}

// Emit writes the event with tx, so it commits or rolls back with the change
// it describes.
func (e *Emitter) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errNoTx
	}
	row, env, err := seal(event)
	if err != nil {
		return err
	}
	if err := e.repo.Insert(tx, row); err != nil {
		return fmt.Errorf("queue %s: %w", event.EventType, err)
	}
	if e.logg != nil {
		e.logg.Debug(e.logg.WithFields(ctx, map[string]any{
			"event_id":     env.EventID,
			"event_type":   event.EventType,
			"aggregate_id": event.AggregateID.String(),
		}), "outbox event queued")
	}
	return nil
}

// seal wraps the event data in a versioned envelope and builds its row.
func seal(event DomainEvent) (models.OutboxEvent, PayloadEnvelope, error) {
	switch {
	case !event.EventType.IsValid():
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("unknown event type %q", event.EventType)
	case !event.AggregateType.IsValid():
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("unknown aggregate type %q", event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("%s: aggregate id required", event.EventType)
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("encode %s: %w", event.EventType, err)
	}
	at := event.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}
	env := PayloadEnvelope{
		Version:    max(event.Version, 1),
		EventID:    uuid.NewString(),
		OccurredAt: at.UTC(),
		Actor:      event.Actor,
		Data:       data,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("encode envelope: %w", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		CreatedAt:     env.OccurredAt,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	}, env, nil
}
