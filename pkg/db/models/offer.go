package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tradepost/pkg/enums"
)

const (
	OfferLineRequested = "requested"
	OfferLineTrade     = "trade"
)

type Offer struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	ListingID      uuid.UUID           `gorm:"column:listing_id;type:uuid;not null;index"`
	OfferingUserID uuid.UUID           `gorm:"column:offering_user_id;type:uuid;not null;index"`
	Status         enums.OfferStatus   `gorm:"column:status;type:text;not null;index"`
	Amount         decimal.NullDecimal `gorm:"column:amount;type:numeric(14,2)"`
	Currency       *enums.Currency     `gorm:"column:currency;type:text"`
	Message        string              `gorm:"column:message;not null;default:''"`
	CreatedAt      time.Time           `gorm:"column:created_at;index"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime:false"`
	Version        int64               `gorm:"column:version;not null;default:1"`
}

func (Offer) TableName() string { return "offers" }

type OfferLineItem struct {
	OfferID  uuid.UUID `gorm:"column:offer_id;type:uuid;primaryKey"`
	ItemID   uuid.UUID `gorm:"column:item_id;type:uuid;primaryKey"`
	Kind     string    `gorm:"column:kind;type:text;primaryKey"`
	Quantity int       `gorm:"column:quantity;not null"`
}

func (OfferLineItem) TableName() string { return "offer_line_items" }

// OfferReservation persists a stock token held by an offer.
type OfferReservation struct {
	ID       uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OfferID  uuid.UUID `gorm:"column:offer_id;type:uuid;not null;index"`
	ItemID   uuid.UUID `gorm:"column:item_id;type:uuid;not null"`
	Quantity int       `gorm:"column:quantity;not null"`
}

func (OfferReservation) TableName() string { return "offer_reservations" }
