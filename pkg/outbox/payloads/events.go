package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-commissions/pkg/enums"
)

// InvoiceCreatedEvent is emitted when a period's invoice is first materialized.
type InvoiceCreatedEvent struct {
	InvoiceID      uuid.UUID      `json:"invoice_id"`
	StoreID        uuid.UUID      `json:"store_id"`
	PeriodID       uuid.UUID      `json:"period_id"`
	PeriodStart    time.Time      `json:"period_start"`
	CommissionRate string         `json:"commission_rate"`
	Currency       enums.Currency `json:"currency"`
}

// InvoiceProofUploadedEvent signals a proof is waiting for admin review.
type InvoiceProofUploadedEvent struct {
	InvoiceID         uuid.UUID `json:"invoice_id"`
	StoreID           uuid.UUID `json:"store_id"`
	ProofID           uuid.UUID `json:"proof_id"`
	ProofURL          string    `json:"proof_url"`
	TotalRevenueCents int64     `json:"total_revenue_cents"`
	FeeAmountCents    int64     `json:"fee_amount_cents"`
	UploadedAt        time.Time `json:"uploaded_at"`
}

// InvoiceProofRejectedEvent tells the store to upload a new proof.
type InvoiceProofRejectedEvent struct {
	InvoiceID  uuid.UUID `json:"invoice_id"`
	StoreID    uuid.UUID `json:"store_id"`
	ProofID    uuid.UUID `json:"proof_id"`
	Reason     string    `json:"reason"`
	RejectedBy uuid.UUID `json:"rejected_by"`
	RejectedAt time.Time `json:"rejected_at"`
}

// InvoiceSettledEvent is emitted once per invoice when payment is confirmed.
type InvoiceSettledEvent struct {
	InvoiceID         uuid.UUID `json:"invoice_id"`
	StoreID           uuid.UUID `json:"store_id"`
	PeriodID          uuid.UUID `json:"period_id"`
	TotalRevenueCents int64     `json:"total_revenue_cents"`
	FeeAmountCents    int64     `json:"fee_amount_cents"`
	VerifiedBy        uuid.UUID `json:"verified_by"`
	VerifiedAt        time.Time `json:"verified_at"`
}

// StorePeriodReopenedEvent announces the period that replaced a settled one.
type StorePeriodReopenedEvent struct {
	StoreID        uuid.UUID `json:"store_id"`
	ClosedPeriodID uuid.UUID `json:"closed_period_id"`
	NewPeriodID    uuid.UUID `json:"new_period_id"`
	StartDate      time.Time `json:"start_date"`
}

// StoreScoped is implemented by every payload. Consumers rely on the store id
// as the ordering key so a settlement and its reopened period arrive in order.
type StoreScoped interface {
	StoreKey() uuid.UUID
}

func (e InvoiceCreatedEvent) StoreKey() uuid.UUID       { return e.StoreID }
func (e InvoiceProofUploadedEvent) StoreKey() uuid.UUID { return e.StoreID }
func (e InvoiceProofRejectedEvent) StoreKey() uuid.UUID { return e.StoreID }
func (e InvoiceSettledEvent) StoreKey() uuid.UUID       { return e.StoreID }
func (e StorePeriodReopenedEvent) StoreKey() uuid.UUID  { return e.StoreID }
