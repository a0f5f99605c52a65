package models

import (
	"time"

	"github.com/google/uuid"
)

// Item stores the persisted quantities of a physical good. Version grows with
// every stock mutation so older snapshots never overwrite newer ones.
type Item struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID           uuid.UUID `gorm:"column:owner_id;type:uuid;not null;index"`
	Title             string    `gorm:"column:title;not null"`
	TotalQuantity     int       `gorm:"column:total_quantity;not null"`
	AvailableQuantity int       `gorm:"column:available_quantity;not null"`
	Version           int64     `gorm:"column:version;not null;default:0"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Item) TableName() string { return "items" }
