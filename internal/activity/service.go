// Package activity is the append-only audit trail of invoice transitions.
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-commissions/pkg/db/models"
	"github.com/angelmondragon/marketplace-commissions/pkg/enums"
)

// Service records and reads invoice activity.
type Service interface {
	Append(ctx context.Context, tx *gorm.DB, input AppendInput) (*models.InvoiceActivity, error)
	EntriesFor(ctx context.Context, invoiceID uuid.UUID) ([]models.InvoiceActivity, error)
}

// AppendInput captures one transition to be audited.
type AppendInput struct {
	InvoiceID   uuid.UUID
	Action      enums.InvoiceActivityAction
	Description string
	ActorID     *uuid.UUID
	ActorRole   *enums.ActorRole
	Metadata    map[string]any
	OccurredAt  time.Time
}

type service struct {
	repo Repository
}

// NewService wires an activity service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("activity repository required")
	}
	return &service{repo: repo}, nil
}

// Append writes the entry inside tx; the caller's transition commits or rolls back with it.
func (s *service) Append(ctx context.Context, tx *gorm.DB, input AppendInput) (*models.InvoiceActivity, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if input.InvoiceID == uuid.Nil {
		return nil, fmt.Errorf("invoice id is required")
	}
	if !input.Action.IsValid() {
		return nil, fmt.Errorf("invalid activity action %q", input.Action)
	}
	description := strings.TrimSpace(input.Description)
	if description == "" {
		return nil, fmt.Errorf("description is required")
	}

	var metadata json.RawMessage
	if len(input.Metadata) > 0 {
		raw, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode activity metadata: %w", err)
		}
		metadata = raw
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	entry := &models.InvoiceActivity{
		ID:          uuid.New(),
		InvoiceID:   input.InvoiceID,
		Action:      input.Action,
		Description: description,
		ActorID:     input.ActorID,
		ActorRole:   input.ActorRole,
		Metadata:    metadata,
		CreatedAt:   occurredAt.UTC(),
	}
	if err := s.repo.WithTx(tx).Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) EntriesFor(ctx context.Context, invoiceID uuid.UUID) ([]models.InvoiceActivity, error) {
	if invoiceID == uuid.Nil {
		return nil, fmt.Errorf("invoice id is required")
	}
	return s.repo.ListByInvoiceID(ctx, invoiceID)
}
