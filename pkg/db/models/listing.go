package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost/pkg/enums"
)

// Listing keeps the shared listing columns; the variant terms live in a
// JSON document. AuctionEndTime is copied out for the close sweep.
type Listing struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	CreatorID      uuid.UUID           `gorm:"column:creator_id;type:uuid;not null;index"`
	Type           enums.ListingType   `gorm:"column:type;type:text;not null"`
	Status         enums.ListingStatus `gorm:"column:status;type:text;not null;index"`
	Title          string              `gorm:"column:title;not null;default:''"`
	Terms          json.RawMessage     `gorm:"column:terms;type:jsonb"`
	AuctionEndTime *time.Time          `gorm:"column:auction_end_time"`
	CreatedAt      time.Time           `gorm:"column:created_at"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime:false"`
	Version        int64               `gorm:"column:version;not null;default:1"`
}

func (Listing) TableName() string { return "listings" }

type ListingItem struct {
	ListingID uuid.UUID `gorm:"column:listing_id;type:uuid;primaryKey"`
	ItemID    uuid.UUID `gorm:"column:item_id;type:uuid;primaryKey"`
	Position  int       `gorm:"column:position;not null"`
	Quantity  int       `gorm:"column:quantity;not null"`
}

func (ListingItem) TableName() string { return "listing_items" }
