package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tradepost/pkg/enums"
)

// LineItem mirrors an (item, quantity) pair inside event payloads.
type LineItem struct {
	ItemID   uuid.UUID `json:"item_id"`
	Quantity int       `json:"quantity"`
}

// OfferEvent is emitted on every offer status change.
type OfferEvent struct {
	OfferID        uuid.UUID         `json:"offer_id"`
	ListingID      uuid.UUID         `json:"listing_id"`
	OfferingUserID uuid.UUID         `json:"offering_user_id"`
	Status         enums.OfferStatus `json:"status"`
	Amount         *decimal.Decimal  `json:"amount,omitempty"`
	Currency       enums.Currency    `json:"currency,omitempty"`
	Items          []LineItem        `json:"items,omitempty"`
	TradeItems     []LineItem        `json:"trade_items,omitempty"`
}

// BidPlacedEvent is emitted for every accepted bid.
type BidPlacedEvent struct {
	ListingID uuid.UUID       `json:"listing_id"`
	BidID     uuid.UUID       `json:"bid_id"`
	BidderID  uuid.UUID       `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  enums.Currency  `json:"currency"`
	Sequence  int             `json:"sequence"`
	PlacedAt  time.Time       `json:"placed_at"`
}

// AuctionEndedEvent reports how an auction closed.
type AuctionEndedEvent struct {
	ListingID    uuid.UUID           `json:"listing_id"`
	Status       enums.ListingStatus `json:"status"`
	ReserveMet   bool                `json:"reserve_met"`
	WinnerID     *uuid.UUID          `json:"winner_id,omitempty"`
	WinningBid   *decimal.Decimal    `json:"winning_bid,omitempty"`
	WinningOffer *uuid.UUID          `json:"winning_offer_id,omitempty"`
	BidCount     int                 `json:"bid_count"`
}

// ListingEvent is emitted when a listing opens or is called off.
type ListingEvent struct {
	ListingID uuid.UUID           `json:"listing_id"`
	CreatorID uuid.UUID           `json:"creator_id"`
	Type      enums.ListingType   `json:"type"`
	Status    enums.ListingStatus `json:"status"`
}

// PickupEvent is emitted on every pickup status change.
type PickupEvent struct {
	PickupID     uuid.UUID          `json:"pickup_id"`
	OfferID      uuid.UUID          `json:"offer_id"`
	ListingID    uuid.UUID          `json:"listing_id"`
	Status       enums.PickupStatus `json:"status"`
	Dates        []time.Time        `json:"dates,omitempty"`
	SelectedDate *time.Time         `json:"selected_date,omitempty"`
	SelectedTime string             `json:"selected_time,omitempty"`
	Location     string             `json:"location,omitempty"`
}
