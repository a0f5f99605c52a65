package market

import (
	"sort"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/tradepost/pkg/errors"
)

// Item is a physical good with a limited quantity.
type Item struct {
	ID                uuid.UUID `json:"id"`
	OwnerID           uuid.UUID `json:"ownerId"`
	Title             string    `json:"title"`
	TotalQuantity     int       `json:"totalQuantity"`
	AvailableQuantity int       `json:"availableQuantity"`
	// Version counts stored quantity changes.
	Version int64 `json:"version"`
}

func (i Item) Validate() error {
	if i.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	if i.TotalQuantity < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "total quantity must not be negative")
	}
	if i.AvailableQuantity < 0 || i.AvailableQuantity > i.TotalQuantity {
		return pkgerrors.New(pkgerrors.CodeValidation, "available quantity must be between 0 and total quantity").
			WithDetails(map[string]any{
				"item_id":   i.ID,
				"available": i.AvailableQuantity,
				"total":     i.TotalQuantity,
			})
	}
	return nil
}

// LineItem pairs an item with a quantity.
type LineItem struct {
	ItemID   uuid.UUID `json:"itemId"`
	Quantity int       `json:"quantity"`
}

// MergeLineItems sums duplicate item ids and returns the pairs sorted by id,
// which is also the canonical lock order used by the stock.
func MergeLineItems(items []LineItem) ([]LineItem, error) {
	if len(items) == 0 {
		return nil, nil
	}
	totals := make(map[uuid.UUID]int, len(items))
	for _, li := range items {
		if li.ItemID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "line item id is required")
		}
		if li.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "line item quantity must be positive").
				WithDetails(map[string]any{"item_id": li.ItemID, "quantity": li.Quantity})
		}
		totals[li.ItemID] += li.Quantity
	}
	merged := make([]LineItem, 0, len(totals))
	for id, qty := range totals {
		merged = append(merged, LineItem{ItemID: id, Quantity: qty})
	}
	SortLineItems(merged)
	return merged, nil
}

func SortLineItems(items []LineItem) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].ItemID.String() < items[j].ItemID.String()
	})
}

// Token is a claim on reserved units of one item.
type Token struct {
	ID       uuid.UUID `json:"id"`
	ItemID   uuid.UUID `json:"itemId"`
	Quantity int       `json:"quantity"`
}
