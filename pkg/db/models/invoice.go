package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-commissions/pkg/enums"
)

// Invoice is the commission bill for one store period.
type Invoice struct {
	ID                          uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID                     uuid.UUID           `gorm:"column:store_id;type:uuid;not null"`
	PeriodID                    uuid.UUID           `gorm:"column:period_id;type:uuid;not null"`
	PeriodStart                 time.Time           `gorm:"column:period_start;not null"`
	PeriodEnd                   *time.Time          `gorm:"column:period_end"`
	TotalRevenueCents           int64               `gorm:"column:total_revenue_cents;not null"`
	FeeAmountCents              int64               `gorm:"column:fee_amount_cents;not null"`
	CommissionRate              decimal.Decimal     `gorm:"column:commission_rate;type:numeric(6,4);not null"`
	Currency                    enums.Currency      `gorm:"column:currency;type:text;not null"`
	Status                      enums.InvoiceStatus `gorm:"column:status;type:invoice_status;not null"`
	PaymentProofURL             *string             `gorm:"column:payment_proof_url"`
	PaymentProofUploadedAt      *time.Time          `gorm:"column:payment_proof_uploaded_at"`
	PaymentProofRejected        bool                `gorm:"column:payment_proof_rejected;not null"`
	PaymentProofRejectionReason *string             `gorm:"column:payment_proof_rejection_reason"`
	VerifiedAt                  *time.Time          `gorm:"column:verified_at"`
	VerifiedBy                  *uuid.UUID          `gorm:"column:verified_by;type:uuid"`
	Version                     int                 `gorm:"column:version;not null"`
	CreatedAt                   time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                   time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// HasPendingProof reports whether a non-rejected proof is attached.
func (i Invoice) HasPendingProof() bool {
	return i.PaymentProofURL != nil && *i.PaymentProofURL != "" && !i.PaymentProofRejected
}
