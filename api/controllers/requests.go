package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tradepost/api/validators"
	"github.com/angelmondragon/tradepost/internal/market"
	"github.com/angelmondragon/tradepost/internal/offers"
	"github.com/angelmondragon/tradepost/internal/pickups"
	"github.com/angelmondragon/tradepost/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost/pkg/errors"
)

const (
	maxTitleLen    = 200
	maxMessageLen  = 1000
	maxLocationLen = 500
)

type lineItemRequest struct {
	ItemID   string `json:"itemId" validate:"required,uuid"`
	Quantity int    `json:"quantity" validate:"required,min=1"`
}

type moneyRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency,omitempty"`
}

type createItemRequest struct {
	Title    string `json:"title" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,min=1"`
}

type tradeTermsRequest struct {
	AcceptMoneyOffers bool `json:"acceptMoneyOffers"`
	AcceptMixedOffers bool `json:"acceptMixedOffers"`
	AcceptOtherOffers bool `json:"acceptOtherOffers"`
}

type sellTermsRequest struct {
	Price moneyRequest `json:"price"`
}

type auctionTermsRequest struct {
	StartingPrice       decimal.Decimal    `json:"startingPrice"`
	ReservePrice        *decimal.Decimal   `json:"reservePrice,omitempty"`
	MinimumBidIncrement decimal.Decimal    `json:"minimumBidIncrement"`
	Currency            string             `json:"currency,omitempty"`
	StartTime           time.Time          `json:"startTime"`
	EndTime             time.Time          `json:"endTime" validate:"required"`
	OfferPolicy         *tradeTermsRequest `json:"offerPolicy,omitempty"`
}

type createListingRequest struct {
	Type    string               `json:"type" validate:"required,oneof=sell trade gift auction"`
	Title   string               `json:"title" validate:"required"`
	Items   []lineItemRequest    `json:"items" validate:"required,min=1,dive"`
	Sell    *sellTermsRequest    `json:"sell,omitempty"`
	Trade   *tradeTermsRequest   `json:"trade,omitempty"`
	Auction *auctionTermsRequest `json:"auction,omitempty"`
}

type createOfferRequest struct {
	Amount     *moneyRequest     `json:"amount,omitempty"`
	Items      []lineItemRequest `json:"items,omitempty" validate:"omitempty,dive"`
	TradeItems []lineItemRequest `json:"tradeItems,omitempty" validate:"omitempty,dive"`
	Message    string            `json:"message,omitempty"`
}

type proposalRequest struct {
	AvailableDates []string `json:"availableDates" validate:"required,min=1,dive,required"`
	WindowStart    string   `json:"windowStart" validate:"required"`
	WindowEnd      string   `json:"windowEnd" validate:"required"`
	Location       string   `json:"location,omitempty"`
}

type acceptOfferRequest struct {
	Pickup *proposalRequest `json:"pickup,omitempty"`
}

type selectTimeRequest struct {
	Date string `json:"date" validate:"required"`
	Time string `json:"time" validate:"required"`
}

type placeBidRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"gt=0"`
}

// hasBody reports whether an optional JSON body was sent.
func hasBody(r *http.Request) bool {
	return r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0
}

func parseCurrency(value string, fallback enums.Currency) (enums.Currency, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	currency, err := enums.ParseCurrency(value)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency")
	}
	return currency, nil
}

func (m moneyRequest) toMoney(fallback enums.Currency) (market.Money, error) {
	currency, err := parseCurrency(m.Currency, fallback)
	if err != nil {
		return market.Money{}, err
	}
	return market.NewMoney(m.Amount, currency)
}

func parseLineItems(items []lineItemRequest) ([]market.LineItem, error) {
	if len(items) == 0 {
		return nil, nil
	}
	out := make([]market.LineItem, 0, len(items))
	for _, li := range items {
		id, err := uuid.Parse(li.ItemID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item id").WithDetails(map[string]any{"itemId": li.ItemID})
		}
		out = append(out, market.LineItem{ItemID: id, Quantity: li.Quantity})
	}
	return out, nil
}

func (t tradeTermsRequest) toTerms() market.TradeTerms {
	return market.TradeTerms{
		AcceptMoneyOffers: t.AcceptMoneyOffers,
		AcceptMixedOffers: t.AcceptMixedOffers,
		AcceptOtherOffers: t.AcceptOtherOffers,
	}
}

func (r createListingRequest) toListing(creatorID uuid.UUID, fallback enums.Currency, now time.Time) (market.Listing, error) {
	listingType, err := enums.ParseListingType(r.Type)
	if err != nil {
		return market.Listing{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid listing type")
	}
	items, err := parseLineItems(r.Items)
	if err != nil {
		return market.Listing{}, err
	}
	listing := market.Listing{
		CreatorID: creatorID,
		Type:      listingType,
		Title:     validators.SanitizeString(r.Title, maxTitleLen),
		Items:     items,
	}
	if r.Sell != nil {
		price, err := r.Sell.Price.toMoney(fallback)
		if err != nil {
			return market.Listing{}, err
		}
		listing.Sell = &market.SellTerms{Price: price}
	}
	if r.Trade != nil {
		terms := r.Trade.toTerms()
		listing.Trade = &terms
	}
	if r.Auction != nil {
		currency, err := parseCurrency(r.Auction.Currency, fallback)
		if err != nil {
			return market.Listing{}, err
		}
		start := r.Auction.StartTime
		if start.IsZero() {
			start = now
		}
		terms := market.AuctionTerms{
			StartingPrice:       r.Auction.StartingPrice,
			ReservePrice:        r.Auction.ReservePrice,
			MinimumBidIncrement: r.Auction.MinimumBidIncrement,
			Currency:            currency,
			StartTime:           start.UTC(),
			EndTime:             r.Auction.EndTime.UTC(),
		}
		if r.Auction.OfferPolicy != nil {
			terms.OfferPolicy = r.Auction.OfferPolicy.toTerms()
		}
		listing.Auction = &terms
	}
	return listing, nil
}

func (r createOfferRequest) toInput(offererID uuid.UUID, fallback enums.Currency) (offers.CreateInput, error) {
	input := offers.CreateInput{
		OfferingUserID: offererID,
		Message:        validators.SanitizeString(r.Message, maxMessageLen),
	}
	if r.Amount != nil {
		amount, err := r.Amount.toMoney(fallback)
		if err != nil {
			return offers.CreateInput{}, err
		}
		input.Amount = &amount
	}
	var err error
	if input.Items, err = parseLineItems(r.Items); err != nil {
		return offers.CreateInput{}, err
	}
	if input.TradeItems, err = parseLineItems(r.TradeItems); err != nil {
		return offers.CreateInput{}, err
	}
	return input, nil
}

func (r proposalRequest) toProposal() (pickups.Proposal, error) {
	dates := make([]time.Time, 0, len(r.AvailableDates))
	for _, raw := range r.AvailableDates {
		day, err := validators.ParseDate("availableDates", raw)
		if err != nil {
			return pickups.Proposal{}, err
		}
		dates = append(dates, day)
	}
	start, err := market.ParseTimeOfDay(strings.TrimSpace(r.WindowStart))
	if err != nil {
		return pickups.Proposal{}, err
	}
	end, err := market.ParseTimeOfDay(strings.TrimSpace(r.WindowEnd))
	if err != nil {
		return pickups.Proposal{}, err
	}
	return pickups.Proposal{
		AvailableDates: dates,
		Window:         market.TimeWindow{Start: start, End: end},
		Location:       validators.SanitizeString(r.Location, maxLocationLen),
	}, nil
}
