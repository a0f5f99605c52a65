package offers

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost/internal/market"
	"github.com/angelmondragon/tradepost/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost/pkg/errors"
)

// offerKind classifies what an offer puts on the table.
type offerKind int

const (
	kindNothing offerKind = iota
	kindMoney
	kindItems
	kindMixed
)

func classify(amount *market.Money, tradeItems []market.LineItem) offerKind {
	hasMoney := amount != nil && amount.IsPositive()
	hasItems := len(tradeItems) > 0
	switch {
	case hasMoney && hasItems:
		return kindMixed
	case hasMoney:
		return kindMoney
	case hasItems:
		return kindItems
	default:
		return kindNothing
	}
}

// requestedItems resolves which listing items the offer asks for. An empty
// request means the whole listing. Auction listings never hand out their
// core items through offers.
func requestedItems(listing market.Listing, requested []market.LineItem) ([]market.LineItem, error) {
	if listing.Type == enums.ListingTypeAuction {
		if len(requested) > 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "auction items are only available through bidding")
		}
		return nil, nil
	}
	if len(requested) == 0 {
		return market.MergeLineItems(listing.Items)
	}

	merged, err := market.MergeLineItems(requested)
	if err != nil {
		return nil, err
	}
	for _, li := range merged {
		listed := listing.QuantityOf(li.ItemID)
		if listed == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item is not part of this listing").
				WithDetails(map[string]any{"item_id": li.ItemID})
		}
		if li.Quantity > listed {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "requested quantity exceeds listed quantity").
				WithDetails(map[string]any{"item_id": li.ItemID, "requested": li.Quantity, "listed": listed})
		}
	}
	return merged, nil
}

// checkTerms enforces what each listing type accepts in exchange.
func checkTerms(listing market.Listing, amount *market.Money, tradeItems []market.LineItem) error {
	if amount != nil {
		if err := amount.Validate(); err != nil {
			return err
		}
	}
	kind := classify(amount, tradeItems)

	switch listing.Type {
	case enums.ListingTypeSell:
		if kind != kindMoney {
			return pkgerrors.New(pkgerrors.CodeValidation, "sell listings only accept money offers")
		}
		if amount.Currency != listing.Sell.Price.Currency {
			return pkgerrors.New(pkgerrors.CodeValidation, "offer currency does not match listing price").
				WithDetails(map[string]any{"expected": listing.Sell.Price.Currency, "got": amount.Currency})
		}
		return nil
	case enums.ListingTypeGift:
		if kind != kindNothing {
			return pkgerrors.New(pkgerrors.CodeValidation, "gift listings do not accept money or items")
		}
		return nil
	case enums.ListingTypeTrade:
		return checkPolicy(*listing.Trade, kind)
	case enums.ListingTypeAuction:
		if kind == kindMoney || kind == kindMixed {
			if amount.Currency != listing.Auction.Currency {
				return pkgerrors.New(pkgerrors.CodeValidation, "offer currency does not match auction currency")
			}
		}
		return checkPolicy(listing.Auction.OfferPolicy, kind)
	default:
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported listing type %q", listing.Type)
	}
}

func checkPolicy(terms market.TradeTerms, kind offerKind) error {
	switch kind {
	case kindMoney:
		if terms.AcceptMoneyOffers {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "listing does not accept money offers")
	case kindItems:
		if terms.AcceptOtherOffers {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "listing does not accept item offers")
	case kindMixed:
		if terms.AcceptMixedOffers {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "listing does not accept mixed offers")
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, "offer must include money or items")
	}
}

// checkTradeOwnership makes sure every traded item belongs to the offerer.
func checkTradeOwnership(offererID uuid.UUID, tradeItems []market.LineItem, known map[uuid.UUID]market.Item) error {
	for _, li := range tradeItems {
		item, ok := known[li.ItemID]
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "trade item not found").
				WithDetails(map[string]any{"item_id": li.ItemID})
		}
		if item.OwnerID != offererID {
			return pkgerrors.New(pkgerrors.CodeUnauthorized, "trade item is not owned by the offering user").
				WithDetails(map[string]any{"item_id": li.ItemID})
		}
	}
	return nil
}
