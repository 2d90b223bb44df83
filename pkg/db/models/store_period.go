package models

import (
	"time"

	"github.com/google/uuid"
)

// StorePeriod is one billing window for a store. A nil EndDate marks the open period.
type StorePeriod struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID   uuid.UUID  `gorm:"column:store_id;type:uuid;not null"`
	StartDate time.Time  `gorm:"column:start_date;not null"`
	EndDate   *time.Time `gorm:"column:end_date"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// IsOpen reports whether the period still accepts orders.
func (p StorePeriod) IsOpen() bool {
	return p.EndDate == nil
}
