package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-commissions/pkg/enums"
)

// InvoiceActivity is an immutable audit entry for an invoice transition.
type InvoiceActivity struct {
	ID          uuid.UUID                   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	InvoiceID   uuid.UUID                   `gorm:"column:invoice_id;type:uuid;not null"`
	// Seq orders entries within one invoice; timestamps can tie.
	Seq         int64                       `gorm:"column:seq;not null"`
	Action      enums.InvoiceActivityAction `gorm:"column:action;type:invoice_activity_action;not null"`
	Description string                      `gorm:"column:description;not null"`
	ActorID     *uuid.UUID                  `gorm:"column:actor_id;type:uuid"`
	ActorRole   *enums.ActorRole            `gorm:"column:actor_role;type:text"`
	Metadata    json.RawMessage             `gorm:"column:metadata;type:jsonb"`
	CreatedAt   time.Time                   `gorm:"column:created_at;not null"`
}
