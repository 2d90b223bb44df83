package models

import (
	"time"

	"github.com/google/uuid"
)

// InvoiceOrderLink records that an order contributed to an invoice. (store_id, order_id) is unique.
type InvoiceOrderLink struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	InvoiceID         uuid.UUID `gorm:"column:invoice_id;type:uuid;not null"`
	StoreID           uuid.UUID `gorm:"column:store_id;type:uuid;not null"`
	OrderID           uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	OrderRevenueCents int64     `gorm:"column:order_revenue_cents;not null"`
	OrderFeeCents     int64     `gorm:"column:order_fee_cents;not null"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
}
