package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tradepost/pkg/enums"
)

type Bid struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ListingID uuid.UUID       `gorm:"column:listing_id;type:uuid;not null;uniqueIndex:ux_bids_listing_sequence"`
	BidderID  uuid.UUID       `gorm:"column:bidder_id;type:uuid;not null"`
	Amount    decimal.Decimal `gorm:"column:amount;type:numeric(14,2);not null"`
	Currency  enums.Currency  `gorm:"column:currency;type:text;not null"`
	Sequence  int             `gorm:"column:sequence;not null;uniqueIndex:ux_bids_listing_sequence"`
	PlacedAt  time.Time       `gorm:"column:placed_at;not null"`
}

func (Bid) TableName() string { return "bids" }
