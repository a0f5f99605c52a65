package offers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost/internal/market"
	"github.com/angelmondragon/tradepost/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost/pkg/errors"
	"github.com/angelmondragon/tradepost/pkg/metrics"
)

// Inventory is the slice of the item stock the state machine drives.
type Inventory interface {
	ReserveAll(ctx context.Context, lines []market.LineItem) ([]market.Token, error)
	Release(ctx context.Context, tokens ...market.Token) error
	Restore(ctx context.Context, tokens ...market.Token) error
	Commit(ctx context.Context, tokens ...market.Token) error
	Uncommit(ctx context.Context, tokens ...market.Token) error
	IsLive(ctx context.Context, token market.Token) bool
	Snapshots(ctx context.Context, itemIDs []uuid.UUID) (map[uuid.UUID]market.Item, error)
}

// CreateInput carries what a user puts forward when making an offer.
type CreateInput struct {
	OfferingUserID uuid.UUID
	Amount         *market.Money
	Items          []market.LineItem
	TradeItems     []market.LineItem
	Message        string
}

// Machine applies offer status transitions together with the stock
// movement each one implies. Every method returns an updated copy and leaves
// the input untouched.
type Machine struct {
	inventory Inventory
	metrics   *metrics.EngineMetrics
	now       func() time.Time
}

func NewMachine(inventory Inventory, engineMetrics *metrics.EngineMetrics) (*Machine, error) {
	if inventory == nil {
		return nil, fmt.Errorf("inventory required")
	}
	return &Machine{
		inventory: inventory,
		metrics:   engineMetrics,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock replaces the time source used for offer timestamps.
func (m *Machine) WithClock(now func() time.Time) *Machine {
	if now != nil {
		m.now = now
	}
	return m
}

// Create validates the offer against the listing rules and reserves the
// requested and traded items as one group.
func (m *Machine) Create(ctx context.Context, listing market.Listing, input CreateInput) (market.Offer, error) {
	if !listing.IsActive() {
		return market.Offer{}, pkgerrors.New(pkgerrors.CodeStateConflict, "listing is not accepting offers").
			WithDetails(map[string]any{"listing_id": listing.ID, "status": listing.Status})
	}
	if input.OfferingUserID == uuid.Nil {
		return market.Offer{}, pkgerrors.New(pkgerrors.CodeValidation, "offering user is required")
	}
	if input.OfferingUserID == listing.CreatorID {
		return market.Offer{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "cannot make an offer on your own listing")
	}

	items, err := requestedItems(listing, input.Items)
	if err != nil {
		return market.Offer{}, err
	}
	tradeItems, err := market.MergeLineItems(input.TradeItems)
	if err != nil {
		return market.Offer{}, err
	}
	if err := checkTerms(listing, input.Amount, tradeItems); err != nil {
		return market.Offer{}, err
	}
	if len(tradeItems) > 0 {
		ids := make([]uuid.UUID, 0, len(tradeItems))
		for _, li := range tradeItems {
			ids = append(ids, li.ItemID)
		}
		known, err := m.inventory.Snapshots(ctx, ids)
		if err != nil {
			return market.Offer{}, err
		}
		if err := checkTradeOwnership(input.OfferingUserID, tradeItems, known); err != nil {
			return market.Offer{}, err
		}
	}

	group := make([]market.LineItem, 0, len(items)+len(tradeItems))
	group = append(group, items...)
	group = append(group, tradeItems...)
	tokens, err := m.inventory.ReserveAll(ctx, group)
	if err != nil {
		return market.Offer{}, err
	}

	now := m.now()
	offer := market.Offer{
		ID:             uuid.New(),
		ListingID:      listing.ID,
		OfferingUserID: input.OfferingUserID,
		Status:         enums.OfferStatusPending,
		Items:          items,
		TradeItems:     tradeItems,
		Reservations:   tokens,
		Message:        input.Message,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if input.Amount != nil {
		amount := *input.Amount
		offer.Amount = &amount
	}
	m.metrics.ObserveTransition(enums.OfferStatusPending.String())
	return offer, nil
}

// Award materializes the winning bid of an ended auction as an accepted
// offer holding the listing's items.
func (m *Machine) Award(ctx context.Context, listing market.Listing) (market.Offer, error) {
	if listing.Type != enums.ListingTypeAuction || listing.Auction == nil {
		return market.Offer{}, pkgerrors.New(pkgerrors.CodeValidation, "listing is not an auction")
	}
	terms := listing.Auction
	if terms.HighestBidderID == nil || terms.HighestBid == nil {
		return market.Offer{}, pkgerrors.New(pkgerrors.CodeStateConflict, "auction has no winning bid")
	}
	items, err := market.MergeLineItems(listing.Items)
	if err != nil {
		return market.Offer{}, err
	}
	tokens, err := m.inventory.ReserveAll(ctx, items)
	if err != nil {
		return market.Offer{}, err
	}
	if err := m.inventory.Commit(ctx, tokens...); err != nil {
		if releaseErr := m.inventory.Release(ctx, tokens...); releaseErr != nil {
			return market.Offer{}, pkgerrors.Wrap(pkgerrors.CodeInternal, releaseErr, "releasing award reservation")
		}
		return market.Offer{}, err
	}

	now := m.now()
	m.metrics.ObserveTransition(enums.OfferStatusAccepted.String())
	return market.Offer{
		ID:             uuid.New(),
		ListingID:      listing.ID,
		OfferingUserID: *terms.HighestBidderID,
		Status:         enums.OfferStatusAccepted,
		Amount:         &market.Money{Amount: *terms.HighestBid, Currency: terms.Currency},
		Items:          items,
		Reservations:   tokens,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Accept commits the offer's reservations. Only the listing creator may
// accept, and only while every reservation is still held.
func (m *Machine) Accept(ctx context.Context, listing market.Listing, offer market.Offer, actorID uuid.UUID) (market.Offer, error) {
	if err := requireCreator(listing, offer, actorID); err != nil {
		return market.Offer{}, err
	}
	if err := requireStatus(offer, enums.OfferStatusPending, enums.OfferStatusAccepted); err != nil {
		return market.Offer{}, err
	}
	for _, tok := range offer.Reservations {
		if !m.inventory.IsLive(ctx, tok) {
			return market.Offer{}, pkgerrors.New(pkgerrors.CodeInsufficientStock, "offer reservation is no longer held").
				WithDetails(map[string]any{"offer_id": offer.ID, "item_id": tok.ItemID})
		}
	}
	if err := m.inventory.Commit(ctx, offer.Reservations...); err != nil {
		return market.Offer{}, err
	}
	return m.advance(offer, enums.OfferStatusAccepted), nil
}

// Reject releases the reservations of a pending offer on the creator's behalf.
func (m *Machine) Reject(ctx context.Context, listing market.Listing, offer market.Offer, actorID uuid.UUID) (market.Offer, error) {
	if err := requireCreator(listing, offer, actorID); err != nil {
		return market.Offer{}, err
	}
	return m.release(ctx, offer, enums.OfferStatusRejected)
}

// Withdraw releases the reservations of a pending offer on the offerer's behalf.
func (m *Machine) Withdraw(ctx context.Context, offer market.Offer, actorID uuid.UUID) (market.Offer, error) {
	if actorID != offer.OfferingUserID {
		return market.Offer{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "only the offering user can withdraw an offer")
	}
	return m.release(ctx, offer, enums.OfferStatusWithdrawn)
}

// Expire moves a pending offer to expired. Any other status is left as is
// and reported with changed=false, so sweeps can call it repeatedly.
func (m *Machine) Expire(ctx context.Context, offer market.Offer) (market.Offer, bool, error) {
	if offer.Status != enums.OfferStatusPending {
		return offer, false, nil
	}
	next, err := m.release(ctx, offer, enums.OfferStatusExpired)
	if err != nil {
		return market.Offer{}, false, err
	}
	return next, true, nil
}

// Complete marks an accepted offer as fulfilled. Stock was already
// committed at acceptance.
func (m *Machine) Complete(listing market.Listing, offer market.Offer, actorID uuid.UUID) (market.Offer, error) {
	if err := requireParticipant(listing, offer, actorID); err != nil {
		return market.Offer{}, err
	}
	if err := requireStatus(offer, enums.OfferStatusAccepted, enums.OfferStatusCompleted); err != nil {
		return market.Offer{}, err
	}
	return m.advance(offer, enums.OfferStatusCompleted), nil
}

// Cancel calls off an accepted offer and returns its units to inventory.
func (m *Machine) Cancel(ctx context.Context, listing market.Listing, offer market.Offer, actorID uuid.UUID) (market.Offer, error) {
	if err := requireParticipant(listing, offer, actorID); err != nil {
		return market.Offer{}, err
	}
	if err := requireStatus(offer, enums.OfferStatusAccepted, enums.OfferStatusCancelled); err != nil {
		return market.Offer{}, err
	}
	if err := m.inventory.Uncommit(ctx, offer.Reservations...); err != nil {
		return market.Offer{}, err
	}
	if err := m.inventory.Release(ctx, offer.Reservations...); err != nil {
		if undoErr := m.inventory.Commit(ctx, offer.Reservations...); undoErr != nil {
			return market.Offer{}, pkgerrors.Wrap(pkgerrors.CodeInternal, undoErr, "restoring commit after failed release")
		}
		return market.Offer{}, err
	}
	return m.advance(offer, enums.OfferStatusCancelled), nil
}

// Unwind reverses the stock movement between prev and next. It is used when
// the new offer state could not be persisted. A zero prev means next was
// freshly created.
func (m *Machine) Unwind(ctx context.Context, prev, next market.Offer) error {
	tokens := next.Reservations
	switch {
	case prev.Status == "" && next.Status == enums.OfferStatusAccepted:
		if err := m.inventory.Uncommit(ctx, tokens...); err != nil {
			return err
		}
		return m.inventory.Release(ctx, tokens...)
	case prev.Status == "":
		return m.inventory.Release(ctx, tokens...)
	case prev.Status == next.Status:
		return nil
	case prev.Status == enums.OfferStatusPending && next.Status == enums.OfferStatusAccepted:
		return m.inventory.Uncommit(ctx, tokens...)
	case prev.Status == enums.OfferStatusPending:
		return m.inventory.Restore(ctx, tokens...)
	case prev.Status == enums.OfferStatusAccepted && next.Status == enums.OfferStatusCancelled:
		if err := m.inventory.Restore(ctx, tokens...); err != nil {
			return err
		}
		return m.inventory.Commit(ctx, tokens...)
	default:
		return nil
	}
}

func (m *Machine) release(ctx context.Context, offer market.Offer, target enums.OfferStatus) (market.Offer, error) {
	if err := requireStatus(offer, enums.OfferStatusPending, target); err != nil {
		return market.Offer{}, err
	}
	if err := m.inventory.Release(ctx, offer.Reservations...); err != nil {
		return market.Offer{}, err
	}
	return m.advance(offer, target), nil
}

func (m *Machine) advance(offer market.Offer, target enums.OfferStatus) market.Offer {
	next := offer.Clone()
	next.Status = target
	next.UpdatedAt = m.now()
	m.metrics.ObserveTransition(target.String())
	return next
}

func requireStatus(offer market.Offer, from, to enums.OfferStatus) error {
	if offer.Status == from {
		return nil
	}
	return pkgerrors.Newf(pkgerrors.CodeStateConflict, "offer cannot move from %s to %s", offer.Status, to).
		WithDetails(map[string]any{"offer_id": offer.ID, "status": offer.Status, "target": to})
}

func requireCreator(listing market.Listing, offer market.Offer, actorID uuid.UUID) error {
	if offer.ListingID != listing.ID {
		return pkgerrors.New(pkgerrors.CodeValidation, "offer does not belong to listing")
	}
	if actorID != listing.CreatorID {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "only the listing creator can decide on offers")
	}
	return nil
}

func requireParticipant(listing market.Listing, offer market.Offer, actorID uuid.UUID) error {
	if offer.ListingID != listing.ID {
		return pkgerrors.New(pkgerrors.CodeValidation, "offer does not belong to listing")
	}
	if actorID != listing.CreatorID && actorID != offer.OfferingUserID {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "only the listing creator or offering user can act on this offer")
	}
	return nil
}
