package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentProof is one uploaded piece of evidence for an invoice. Re-uploads supersede, never delete.
type PaymentProof struct {
	ID              uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	InvoiceID       uuid.UUID  `gorm:"column:invoice_id;type:uuid;not null"`
	StoreID         uuid.UUID  `gorm:"column:store_id;type:uuid;not null"`
	FileURL         string     `gorm:"column:file_url;not null"`
	UploadedBy      uuid.UUID  `gorm:"column:uploaded_by;type:uuid;not null"`
	UploadedAt      time.Time  `gorm:"column:uploaded_at;not null"`
	Rejected        bool       `gorm:"column:rejected;not null"`
	RejectionReason *string    `gorm:"column:rejection_reason"`
	RejectedAt      *time.Time `gorm:"column:rejected_at"`
	RejectedBy      *uuid.UUID `gorm:"column:rejected_by;type:uuid"`
	SupersededAt    *time.Time `gorm:"column:superseded_at"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
}
