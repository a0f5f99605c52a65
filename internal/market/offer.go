package market

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost/pkg/enums"
)

// Offer is a proposal from a user against a listing. Items are the listing
// items requested; TradeItems are the offerer's own items given in exchange.
type Offer struct {
	ID             uuid.UUID         `json:"id"`
	ListingID      uuid.UUID         `json:"listingId"`
	OfferingUserID uuid.UUID         `json:"offeringUserId"`
	Status         enums.OfferStatus `json:"status"`
	Amount         *Money            `json:"amount,omitempty"`
	Items          []LineItem        `json:"items"`
	TradeItems     []LineItem        `json:"tradeItems,omitempty"`
	Reservations   []Token           `json:"-"`
	Message        string            `json:"message,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
	// Version is the stored revision this copy was read at; zero until saved.
	Version int64 `json:"-"`
}

func (o Offer) HasMoney() bool {
	return o.Amount != nil && o.Amount.IsPositive()
}

func (o Offer) HasTradeItems() bool {
	return len(o.TradeItems) > 0
}

// ReservedLineItems is the full group reserved for the offer.
func (o Offer) ReservedLineItems() []LineItem {
	out := make([]LineItem, 0, len(o.Items)+len(o.TradeItems))
	out = append(out, o.Items...)
	out = append(out, o.TradeItems...)
	return out
}

func (o Offer) Clone() Offer {
	out := o
	out.Items = append([]LineItem(nil), o.Items...)
	out.TradeItems = append([]LineItem(nil), o.TradeItems...)
	out.Reservations = append([]Token(nil), o.Reservations...)
	if o.Amount != nil {
		amount := *o.Amount
		out.Amount = &amount
	}
	return out
}
