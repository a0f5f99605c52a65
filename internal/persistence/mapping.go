package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tradepost/internal/auction"
	"github.com/angelmondragon/tradepost/internal/market"
	"github.com/angelmondragon/tradepost/pkg/db/models"
	"github.com/angelmondragon/tradepost/pkg/enums"
)

// listingTerms is the JSON document stored in listings.terms.
type listingTerms struct {
	Sell    *market.SellTerms    `json:"sell,omitempty"`
	Trade   *market.TradeTerms   `json:"trade,omitempty"`
	Auction *market.AuctionTerms `json:"auction,omitempty"`
}

func itemRow(item market.Item) models.Item {
	return models.Item{
		ID:                item.ID,
		OwnerID:           item.OwnerID,
		Title:             item.Title,
		TotalQuantity:     item.TotalQuantity,
		AvailableQuantity: item.AvailableQuantity,
		Version:           item.Version,
	}
}

func itemFromRow(row models.Item) market.Item {
	return market.Item{
		ID:                row.ID,
		OwnerID:           row.OwnerID,
		Title:             row.Title,
		TotalQuantity:     row.TotalQuantity,
		AvailableQuantity: row.AvailableQuantity,
		Version:           row.Version,
	}
}

func listingRows(l market.Listing) (models.Listing, []models.ListingItem, error) {
	terms, err := json.Marshal(listingTerms{Sell: l.Sell, Trade: l.Trade, Auction: l.Auction})
	if err != nil {
		return models.Listing{}, nil, fmt.Errorf("encode listing terms: %w", err)
	}
	row := models.Listing{
		ID:        l.ID,
		CreatorID: l.CreatorID,
		Type:      l.Type,
		Status:    l.Status,
		Title:     l.Title,
		Terms:     terms,
		CreatedAt: l.CreatedAt.UTC(),
		UpdatedAt: l.UpdatedAt.UTC(),
		Version:   l.Version,
	}
	if l.Auction != nil {
		end := l.Auction.EndTime.UTC()
		row.AuctionEndTime = &end
	}
	items := make([]models.ListingItem, 0, len(l.Items))
	for i, li := range l.Items {
		items = append(items, models.ListingItem{
			ListingID: l.ID,
			ItemID:    li.ItemID,
			Position:  i,
			Quantity:  li.Quantity,
		})
	}
	return row, items, nil
}

func listingFromRows(row models.Listing, items []models.ListingItem) (market.Listing, error) {
	var terms listingTerms
	if len(row.Terms) > 0 {
		if err := json.Unmarshal(row.Terms, &terms); err != nil {
			return market.Listing{}, fmt.Errorf("decode listing terms: %w", err)
		}
	}
	l := market.Listing{
		ID:        row.ID,
		CreatorID: row.CreatorID,
		Type:      row.Type,
		Status:    row.Status,
		Title:     row.Title,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
		Version:   row.Version,
		Sell:      terms.Sell,
		Trade:     terms.Trade,
		Auction:   terms.Auction,
	}
	l.Items = make([]market.LineItem, 0, len(items))
	for _, li := range items {
		l.Items = append(l.Items, market.LineItem{ItemID: li.ItemID, Quantity: li.Quantity})
	}
	return l, nil
}

func offerRows(o market.Offer) (models.Offer, []models.OfferLineItem, []models.OfferReservation) {
	row := models.Offer{
		ID:             o.ID,
		ListingID:      o.ListingID,
		OfferingUserID: o.OfferingUserID,
		Status:         o.Status,
		Message:        o.Message,
		CreatedAt:      o.CreatedAt.UTC(),
		UpdatedAt:      o.UpdatedAt.UTC(),
		Version:        o.Version,
	}
	if o.Amount != nil {
		row.Amount = decimal.NullDecimal{Decimal: o.Amount.Amount, Valid: true}
		currency := o.Amount.Currency
		row.Currency = &currency
	}
	lines := make([]models.OfferLineItem, 0, len(o.Items)+len(o.TradeItems))
	for _, li := range o.Items {
		lines = append(lines, models.OfferLineItem{OfferID: o.ID, ItemID: li.ItemID, Kind: models.OfferLineRequested, Quantity: li.Quantity})
	}
	for _, li := range o.TradeItems {
		lines = append(lines, models.OfferLineItem{OfferID: o.ID, ItemID: li.ItemID, Kind: models.OfferLineTrade, Quantity: li.Quantity})
	}
	reservations := make([]models.OfferReservation, 0, len(o.Reservations))
	for _, tok := range o.Reservations {
		reservations = append(reservations, models.OfferReservation{
			ID:       tok.ID,
			OfferID:  o.ID,
			ItemID:   tok.ItemID,
			Quantity: tok.Quantity,
		})
	}
	return row, lines, reservations
}

func offerFromRows(row models.Offer, lines []models.OfferLineItem, reservations []models.OfferReservation) market.Offer {
	o := market.Offer{
		ID:             row.ID,
		ListingID:      row.ListingID,
		OfferingUserID: row.OfferingUserID,
		Status:         row.Status,
		Message:        row.Message,
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
		Version:        row.Version,
	}
	if row.Amount.Valid {
		currency := enums.Currency("")
		if row.Currency != nil {
			currency = *row.Currency
		}
		o.Amount = &market.Money{Amount: row.Amount.Decimal, Currency: currency}
	}
	for _, li := range lines {
		pair := market.LineItem{ItemID: li.ItemID, Quantity: li.Quantity}
		if li.Kind == models.OfferLineTrade {
			o.TradeItems = append(o.TradeItems, pair)
		} else {
			o.Items = append(o.Items, pair)
		}
	}
	market.SortLineItems(o.Items)
	market.SortLineItems(o.TradeItems)
	for _, r := range reservations {
		o.Reservations = append(o.Reservations, market.Token{ID: r.ID, ItemID: r.ItemID, Quantity: r.Quantity})
	}
	return o
}

func pickupRow(p market.Pickup) (models.Pickup, error) {
	dates := make([]time.Time, 0, len(p.AvailableDates))
	for _, d := range p.AvailableDates {
		dates = append(dates, d.UTC())
	}
	encoded, err := json.Marshal(dates)
	if err != nil {
		return models.Pickup{}, fmt.Errorf("encode pickup dates: %w", err)
	}
	row := models.Pickup{
		ID:             p.ID,
		OfferID:        p.OfferID,
		ListingID:      p.ListingID,
		ProposerID:     p.ProposerID,
		RecipientID:    p.RecipientID,
		AvailableDates: encoded,
		WindowStart:    int(p.Window.Start),
		WindowEnd:      int(p.Window.End),
		Location:       p.Location,
		Status:         p.Status,
		CreatedAt:      p.CreatedAt.UTC(),
		UpdatedAt:      p.UpdatedAt.UTC(),
		Version:        p.Version,
	}
	if p.SelectedDate != nil {
		d := p.SelectedDate.UTC()
		row.SelectedDate = &d
	}
	if p.SelectedTime != nil {
		t := int(*p.SelectedTime)
		row.SelectedTime = &t
	}
	return row, nil
}

func pickupFromRow(row models.Pickup) (market.Pickup, error) {
	var dates []time.Time
	if err := json.Unmarshal(row.AvailableDates, &dates); err != nil {
		return market.Pickup{}, fmt.Errorf("decode pickup dates: %w", err)
	}
	p := market.Pickup{
		ID:             row.ID,
		OfferID:        row.OfferID,
		ListingID:      row.ListingID,
		ProposerID:     row.ProposerID,
		RecipientID:    row.RecipientID,
		AvailableDates: dates,
		Window:         market.TimeWindow{Start: market.TimeOfDay(row.WindowStart), End: market.TimeOfDay(row.WindowEnd)},
		Location:       row.Location,
		Status:         row.Status,
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
		Version:        row.Version,
	}
	if row.SelectedDate != nil {
		d := row.SelectedDate.UTC()
		p.SelectedDate = &d
	}
	if row.SelectedTime != nil {
		t := market.TimeOfDay(*row.SelectedTime)
		p.SelectedTime = &t
	}
	return p, nil
}

func bidRow(b auction.Bid) models.Bid {
	return models.Bid{
		ID:        b.ID,
		ListingID: b.ListingID,
		BidderID:  b.BidderID,
		Amount:    b.Amount,
		Currency:  b.Currency,
		Sequence:  b.Sequence,
		PlacedAt:  b.PlacedAt.UTC(),
	}
}

func bidFromRow(row models.Bid) auction.Bid {
	return auction.Bid{
		ID:        row.ID,
		ListingID: row.ListingID,
		BidderID:  row.BidderID,
		Amount:    row.Amount,
		Currency:  row.Currency,
		Sequence:  row.Sequence,
		PlacedAt:  row.PlacedAt.UTC(),
	}
}
