package market

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tradepost/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost/pkg/errors"
)

// Listing is a published intent to sell, trade, gift or auction items.
// Type selects which of the variant payloads is populated.
type Listing struct {
	ID        uuid.UUID           `json:"id"`
	CreatorID uuid.UUID           `json:"creatorId"`
	Type      enums.ListingType   `json:"type"`
	Status    enums.ListingStatus `json:"status"`
	Title     string              `json:"title"`
	Items     []LineItem          `json:"items"`
	CreatedAt time.Time           `json:"createdAt"`
	UpdatedAt time.Time           `json:"updatedAt"`
	// Version is the stored revision this copy was read at; zero until the
	// listing is first saved.
	Version int64 `json:"-"`

	Sell    *SellTerms    `json:"sell,omitempty"`
	Trade   *TradeTerms   `json:"trade,omitempty"`
	Auction *AuctionTerms `json:"auction,omitempty"`
}

type SellTerms struct {
	Price Money `json:"price"`
}

// TradeTerms govern which kinds of offer a listing entertains.
type TradeTerms struct {
	AcceptMoneyOffers bool `json:"acceptMoneyOffers"`
	AcceptMixedOffers bool `json:"acceptMixedOffers"`
	AcceptOtherOffers bool `json:"acceptOtherOffers"`
}

type AuctionTerms struct {
	StartingPrice       decimal.Decimal  `json:"startingPrice"`
	ReservePrice        *decimal.Decimal `json:"reservePrice,omitempty"`
	MinimumBidIncrement decimal.Decimal  `json:"minimumBidIncrement"`
	Currency            enums.Currency   `json:"currency"`
	StartTime           time.Time        `json:"startTime"`
	EndTime             time.Time        `json:"endTime"`
	HighestBid          *decimal.Decimal `json:"highestBid,omitempty"`
	HighestBidderID     *uuid.UUID       `json:"highestBidderId,omitempty"`
	BidCount            int              `json:"bidCount"`
	OfferPolicy         TradeTerms       `json:"offerPolicy"`
}

// Validate checks that the variant payload matches the type.
func (l Listing) Validate() error {
	if l.CreatorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "creator id is required")
	}
	if !l.Type.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid listing type %q", l.Type)
	}
	if len(l.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "listing requires at least one item")
	}
	if _, err := MergeLineItems(l.Items); err != nil {
		return err
	}
	if l.Sell != nil && l.Type != enums.ListingTypeSell ||
		l.Trade != nil && l.Type != enums.ListingTypeTrade ||
		l.Auction != nil && l.Type != enums.ListingTypeAuction {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "terms do not match listing type %q", l.Type)
	}

	switch l.Type {
	case enums.ListingTypeSell:
		if l.Sell == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "sell listing requires a price")
		}
		if err := l.Sell.Price.Validate(); err != nil {
			return err
		}
	case enums.ListingTypeTrade:
		if l.Trade == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "trade listing requires trade terms")
		}
		if !l.Trade.AcceptsAnything() {
			return pkgerrors.New(pkgerrors.CodeValidation, "trade listing must accept at least one offer kind")
		}
	case enums.ListingTypeAuction:
		if l.Auction == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "auction listing requires auction terms")
		}
		return l.Auction.validate()
	}
	return nil
}

func (a AuctionTerms) validate() error {
	if !a.Currency.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported currency %q", a.Currency)
	}
	if !a.StartingPrice.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "starting price must be positive")
	}
	if !a.MinimumBidIncrement.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "minimum bid increment must be positive")
	}
	if a.ReservePrice != nil && a.ReservePrice.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "reserve price must not be negative")
	}
	if !a.EndTime.After(a.StartTime) {
		return pkgerrors.New(pkgerrors.CodeValidation, "auction end time must be after start time")
	}
	return nil
}

func (t TradeTerms) AcceptsAnything() bool {
	return t.AcceptMoneyOffers || t.AcceptMixedOffers || t.AcceptOtherOffers
}

// QuantityOf returns the listed quantity of an item, or zero.
func (l Listing) QuantityOf(itemID uuid.UUID) int {
	total := 0
	for _, li := range l.Items {
		if li.ItemID == itemID {
			total += li.Quantity
		}
	}
	return total
}

func (l Listing) IsActive() bool {
	return l.Status == enums.ListingStatusActive
}

// Clone returns a deep copy so callers can restore a listing after a failed save.
func (l Listing) Clone() Listing {
	out := l
	out.Items = append([]LineItem(nil), l.Items...)
	if l.Sell != nil {
		sell := *l.Sell
		out.Sell = &sell
	}
	if l.Trade != nil {
		trade := *l.Trade
		out.Trade = &trade
	}
	if l.Auction != nil {
		auction := *l.Auction
		if l.Auction.ReservePrice != nil {
			v := *l.Auction.ReservePrice
			auction.ReservePrice = &v
		}
		if l.Auction.HighestBid != nil {
			v := *l.Auction.HighestBid
			auction.HighestBid = &v
		}
		if l.Auction.HighestBidderID != nil {
			v := *l.Auction.HighestBidderID
			auction.HighestBidderID = &v
		}
		out.Auction = &auction
	}
	return out
}
