package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-commissions/pkg/enums"
)

// Order is the read-only view of an order owned by the order ledger.
type Order struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	StoreID         uuid.UUID         `gorm:"column:store_id;type:uuid;not null"`
	Status          enums.OrderStatus `gorm:"column:status;type:text;not null"`
	FinalTotalCents int64             `gorm:"column:final_total_cents;not null"`
	CompletedAt     *time.Time        `gorm:"column:completed_at"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
