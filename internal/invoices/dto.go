package invoices

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-commissions/pkg/db/models"
	"github.com/angelmondragon/marketplace-commissions/pkg/enums"
	"github.com/angelmondragon/marketplace-commissions/pkg/pagination"
)

// UploadProofInput targets an invoice directly or through one of its orders.
type UploadProofInput struct {
	InvoiceID *uuid.UUID
	OrderID   *uuid.UUID
	ProofURL  string
}

// RejectInput carries an admin rejection. ExpectedVersion guards against
// rejecting a proof that was replaced after the admin looked at it.
type RejectInput struct {
	InvoiceID       uuid.UUID
	Reason          string
	ExpectedVersion *int
}

// VerifyAction is the admin decision on a pending proof.
type VerifyAction string

const (
	VerifyActionConfirm VerifyAction = "confirm"
	VerifyActionReject  VerifyAction = "reject"
)

// VerifyInput is the combined admin verification request.
type VerifyInput struct {
	InvoiceID       uuid.UUID
	Action          VerifyAction
	AdminID         *uuid.UUID
	Reason          string
	ExpectedVersion *int
}

// ListFilter narrows invoice listings. Page is 1-based.
type ListFilter struct {
	StoreID *uuid.UUID
	Status  *enums.InvoiceStatus
	Page    int
	Limit   int
}

// ListResult is one page of invoices.
type ListResult struct {
	Items      []InvoiceDTO    `json:"items"`
	Pagination pagination.Meta `json:"pagination"`
}

// Estimate projects what the store's open invoice would become if synced now.
// Linked totals stay authoritative; this is a read-only view.
type Estimate struct {
	StoreID              uuid.UUID  `json:"store_id"`
	InvoiceID            *uuid.UUID `json:"invoice_id,omitempty"`
	InvoicedRevenueCents int64      `json:"invoiced_revenue_cents"`
	InvoicedFeeCents     int64      `json:"invoiced_fee_cents"`
	PendingOrderCount    int64      `json:"pending_order_count"`
	PendingRevenueCents  int64      `json:"pending_revenue_cents"`
	PendingFeeCents      int64      `json:"pending_fee_cents"`
	CommissionRate       string     `json:"commission_rate"`
	AsOf                 time.Time  `json:"as_of"`
}

// InvoiceDetail pairs an invoice with its current estimate.
type InvoiceDetail struct {
	Invoice  InvoiceDTO `json:"invoice"`
	Estimate *Estimate  `json:"estimate,omitempty"`
}

// SweepResult summarizes a sync over every store with pending orders.
type SweepResult struct {
	StoresScanned int         `json:"stores_scanned"`
	StoresSynced  int         `json:"stores_synced"`
	Failed        []uuid.UUID `json:"failed,omitempty"`
}

// UploadURL is a signed destination for a proof file.
type UploadURL struct {
	UploadURL   string    `json:"upload_url"`
	ProofURL    string    `json:"proof_url"`
	ContentType string    `json:"content_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// InvoiceDTO is the API representation of an invoice.
type InvoiceDTO struct {
	ID                          uuid.UUID           `json:"id"`
	StoreID                     uuid.UUID           `json:"store_id"`
	PeriodID                    uuid.UUID           `json:"period_id"`
	PeriodStart                 time.Time           `json:"period_start"`
	PeriodEnd                   *time.Time          `json:"period_end,omitempty"`
	TotalRevenueCents           int64               `json:"total_revenue_cents"`
	FeeAmountCents              int64               `json:"fee_amount_cents"`
	CommissionRate              string              `json:"commission_rate"`
	Currency                    enums.Currency      `json:"currency"`
	Status                      enums.InvoiceStatus `json:"status"`
	PaymentProofURL             *string             `json:"payment_proof_url,omitempty"`
	PaymentProofUploadedAt      *time.Time          `json:"payment_proof_uploaded_at,omitempty"`
	PaymentProofRejected        bool                `json:"payment_proof_rejected"`
	PaymentProofRejectionReason *string             `json:"payment_proof_rejection_reason,omitempty"`
	VerifiedAt                  *time.Time          `json:"verified_at,omitempty"`
	VerifiedBy                  *uuid.UUID          `json:"verified_by,omitempty"`
	Version                     int                 `json:"version"`
	CreatedAt                   time.Time           `json:"created_at"`
	UpdatedAt                   time.Time           `json:"updated_at"`
}

// ToDTO maps the persisted invoice to its API shape.
func ToDTO(inv *models.Invoice) InvoiceDTO {
	return InvoiceDTO{
		ID:                          inv.ID,
		StoreID:                     inv.StoreID,
		PeriodID:                    inv.PeriodID,
		PeriodStart:                 inv.PeriodStart.UTC(),
		PeriodEnd:                   utcPtr(inv.PeriodEnd),
		TotalRevenueCents:           inv.TotalRevenueCents,
		FeeAmountCents:              inv.FeeAmountCents,
		CommissionRate:              inv.CommissionRate.String(),
		Currency:                    inv.Currency,
		Status:                      inv.Status,
		PaymentProofURL:             inv.PaymentProofURL,
		PaymentProofUploadedAt:      utcPtr(inv.PaymentProofUploadedAt),
		PaymentProofRejected:        inv.PaymentProofRejected,
		PaymentProofRejectionReason: inv.PaymentProofRejectionReason,
		VerifiedAt:                  utcPtr(inv.VerifiedAt),
		VerifiedBy:                  inv.VerifiedBy,
		Version:                     inv.Version,
		CreatedAt:                   inv.CreatedAt.UTC(),
		UpdatedAt:                   inv.UpdatedAt.UTC(),
	}
}

// ActivityDTO is the API representation of an activity entry.
type ActivityDTO struct {
	ID          uuid.UUID                   `json:"id"`
	InvoiceID   uuid.UUID                   `json:"invoice_id"`
	Action      enums.InvoiceActivityAction `json:"action"`
	Description string                      `json:"description"`
	ActorID     *uuid.UUID                  `json:"actor_id,omitempty"`
	ActorRole   *enums.ActorRole            `json:"actor_role,omitempty"`
	Metadata    any                         `json:"metadata,omitempty"`
	CreatedAt   time.Time                   `json:"created_at"`
}

// ToActivityDTOs maps activity rows in order.
func ToActivityDTOs(rows []models.InvoiceActivity) []ActivityDTO {
	out := make([]ActivityDTO, 0, len(rows))
	for _, row := range rows {
		dto := ActivityDTO{
			ID:          row.ID,
			InvoiceID:   row.InvoiceID,
			Action:      row.Action,
			Description: row.Description,
			ActorID:     row.ActorID,
			ActorRole:   row.ActorRole,
			CreatedAt:   row.CreatedAt.UTC(),
		}
		if len(row.Metadata) > 0 {
			dto.Metadata = row.Metadata
		}
		out = append(out, dto)
	}
	return out
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
