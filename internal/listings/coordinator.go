package listings

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost/internal/auction"
	"github.com/angelmondragon/tradepost/internal/locks"
	"github.com/angelmondragon/tradepost/internal/market"
	"github.com/angelmondragon/tradepost/internal/offers"
	"github.com/angelmondragon/tradepost/internal/pickups"
	"github.com/angelmondragon/tradepost/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost/pkg/errors"
	"github.com/angelmondragon/tradepost/pkg/logger"
	"github.com/angelmondragon/tradepost/pkg/outbox"
)

// Inventory is the item stock as seen by the coordinator: the offer
// machine's view plus loading of persisted state.
type Inventory interface {
	offers.Inventory
	Replace(ctx context.Context, item market.Item) error
	Adopt(tokens ...market.Token) error
	AdoptCommitted(tokens ...market.Token) error
	Forget(tokens ...market.Token)
}

// Result carries whatever a call touched plus the events it produced.
type Result struct {
	Listing *market.Listing
	Offer   *market.Offer
	Pickup  *market.Pickup
	Bid     *auction.Bid
	Events  []outbox.DomainEvent
}

type Options struct {
	Repository Repository
	Inventory  Inventory
	Offers     *offers.Machine
	Auctions   *auction.Engine
	Pickups    *pickups.Coordinator
	Logger     *logger.Logger
	Settings   Settings
	// Clock defaults to time.Now in UTC.
	Clock func() time.Time
}

// Coordinator is the single entry point for marketplace mutations. All
// changes to one listing, its offers and their pickups run under that
// listing's lock, so an accept never interleaves with a sibling accept and
// bids are applied one at a time in arrival order.
//
// The lock only covers this process. Every locked call starts from stored
// quantities and offers, and Commit rejects writes based on rows another
// process changed in the meantime.
type Coordinator struct {
	repo     Repository
	stock    Inventory
	offers   *offers.Machine
	auctions *auction.Engine
	pickups  *pickups.Coordinator
	logg     *logger.Logger
	settings Settings
	now      func() time.Time
	listings *locks.Keyed
}

func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Repository == nil {
		return nil, fmt.Errorf("repository required")
	}
	if opts.Inventory == nil {
		return nil, fmt.Errorf("inventory required")
	}
	if opts.Offers == nil {
		return nil, fmt.Errorf("offer machine required")
	}
	if opts.Auctions == nil {
		opts.Auctions = auction.NewEngine(nil)
	}
	if opts.Pickups == nil {
		opts.Pickups = pickups.NewCoordinator()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &Coordinator{
		repo:     opts.Repository,
		stock:    opts.Inventory,
		offers:   opts.Offers,
		auctions: opts.Auctions,
		pickups:  opts.Pickups,
		logg:     opts.Logger,
		settings: opts.Settings.withDefaults(),
		now:      opts.Clock,
		listings: locks.New(locks.Options{}),
	}, nil
}

// RegisterItem stores a new item. Items already persisted are returned as
// stored.
func (c *Coordinator) RegisterItem(ctx context.Context, item market.Item) (market.Item, error) {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	stored, err := c.repo.FindItem(ctx, item.ID)
	switch {
	case err == nil:
		return stored, nil
	case !pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		return market.Item{}, err
	}

	if item.OwnerID == uuid.Nil {
		return market.Item{}, pkgerrors.New(pkgerrors.CodeValidation, "item owner is required")
	}
	if err := item.Validate(); err != nil {
		return market.Item{}, err
	}
	if err := c.save(ctx, ChangeSet{Items: []market.Item{item}}, nil); err != nil {
		return market.Item{}, err
	}
	return item, nil
}

// CreateListing stores a new listing in pending status. Every listed item
// must belong to the creator and the listed quantity must fit its total.
func (c *Coordinator) CreateListing(ctx context.Context, listing market.Listing) (Result, error) {
	if err := listing.Validate(); err != nil {
		return Result{}, err
	}
	merged, err := market.MergeLineItems(listing.Items)
	if err != nil {
		return Result{}, err
	}
	known, err := c.loadItems(ctx, lineItemIDs(merged))
	if err != nil {
		return Result{}, err
	}
	for _, li := range merged {
		item := known[li.ItemID]
		if item.OwnerID != listing.CreatorID {
			return Result{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "listed items must belong to the creator").
				WithDetails(map[string]any{"item_id": li.ItemID})
		}
		if li.Quantity > item.TotalQuantity {
			return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "listed quantity exceeds item quantity").
				WithDetails(map[string]any{"item_id": li.ItemID, "listed": li.Quantity, "total": item.TotalQuantity})
		}
	}

	now := c.now()
	created := listing.Clone()
	created.ID = uuid.New()
	created.Version = 0
	created.Status = enums.ListingStatusPending
	created.Items = merged
	created.CreatedAt = now
	created.UpdatedAt = now
	if created.Auction != nil {
		created.Auction.HighestBid = nil
		created.Auction.HighestBidderID = nil
		created.Auction.BidCount = 0
	}

	if err := c.save(ctx, ChangeSet{Listings: []market.Listing{created}}, nil); err != nil {
		return Result{}, err
	}
	ctx = c.logg.WithListingID(ctx, created.ID)
	c.logg.Info(ctx, "listing created")
	return Result{Listing: &created}, nil
}

// ActivateListing opens a pending listing for offers and bids.
func (c *Coordinator) ActivateListing(ctx context.Context, listingID, actorID uuid.UUID) (Result, error) {
	unlock, err := c.lockListing(ctx, listingID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	listing, err := c.repo.FindListing(ctx, listingID)
	if err != nil {
		return Result{}, err
	}
	if actorID != listing.CreatorID {
		return Result{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "only the listing creator can activate it")
	}
	if listing.Status != enums.ListingStatusPending {
		return Result{}, pkgerrors.Newf(pkgerrors.CodeStateConflict, "listing is %s, expected pending", listing.Status).
			WithDetails(map[string]any{"listing_id": listing.ID, "status": listing.Status})
	}
	now := c.now()
	if listing.Auction != nil && auction.IsEnded(*listing.Auction, now) {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "auction end time has already passed").
			WithDetails(map[string]any{"end_time": listing.Auction.EndTime})
	}

	next := listing.Clone()
	next.Status = enums.ListingStatusActive
	next.UpdatedAt = now
	events := []outbox.DomainEvent{listingEvent(enums.EventListingActivated, next, actor(actorID, outbox.RoleCreator), now)}
	if err := c.save(ctx, ChangeSet{Listings: []market.Listing{next}, Events: events}, nil); err != nil {
		return Result{}, err
	}
	c.logg.Info(c.logg.WithListingID(ctx, next.ID), "listing activated")
	return Result{Listing: &next, Events: events}, nil
}

// CancelListing calls a listing off. Pending offers expire and hand their
// reservations back; accepted offers keep their committed units.
func (c *Coordinator) CancelListing(ctx context.Context, listingID, actorID uuid.UUID) (Result, error) {
	unlock, err := c.lockListing(ctx, listingID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	listing, err := c.repo.FindListing(ctx, listingID)
	if err != nil {
		return Result{}, err
	}
	if actorID != listing.CreatorID {
		return Result{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "only the listing creator can cancel it")
	}
	if listing.Status.IsClosed() {
		return Result{}, pkgerrors.Newf(pkgerrors.CodeStateConflict, "listing is already %s", listing.Status).
			WithDetails(map[string]any{"listing_id": listing.ID, "status": listing.Status})
	}

	if err := c.refresh(ctx, listing); err != nil {
		return Result{}, err
	}

	now := c.now()
	next := listing.Clone()
	next.Status = enums.ListingStatusCancelled
	next.UpdatedAt = now

	changes, undo, err := c.expirePending(ctx, listing.ID, now)
	if err != nil {
		return Result{}, err
	}
	changes.Listings = append(changes.Listings, next)
	changes.Events = append(changes.Events, listingEvent(enums.EventListingCancelled, next, actor(actorID, outbox.RoleCreator), now))
	if err := c.save(ctx, changes, undo); err != nil {
		return Result{}, err
	}
	ctx = c.logg.WithFields(c.logg.WithListingID(ctx, next.ID), map[string]any{"expired_offers": len(changes.Offers)})
	c.logg.Info(ctx, "listing cancelled")
	return Result{Listing: &next, Events: changes.Events}, nil
}

// expirePending expires every pending offer of a listing that is about to
// close. The caller holds the listing lock, has refreshed the listing and
// persists the change set.
func (c *Coordinator) expirePending(ctx context.Context, listingID uuid.UUID, now time.Time) (ChangeSet, func(context.Context) error, error) {
	all, err := c.repo.ListOffersByListing(ctx, listingID)
	if err != nil {
		return ChangeSet{}, nil, err
	}
	var (
		changes ChangeSet
		prevs   []market.Offer
		nexts   []market.Offer
	)
	undo := func(ctx context.Context) error {
		for i := range nexts {
			if err := c.offers.Unwind(ctx, prevs[i], nexts[i]); err != nil {
				return err
			}
		}
		return nil
	}
	for _, offer := range all {
		if offer.Status != enums.OfferStatusPending {
			continue
		}
		next, changed, err := c.offers.Expire(ctx, offer)
		if err != nil {
			_ = undo(ctx)
			return ChangeSet{}, nil, err
		}
		if !changed {
			continue
		}
		prevs = append(prevs, offer)
		nexts = append(nexts, next)
		changes.Offers = append(changes.Offers, next)
		changes.Stock = append(changes.Stock, offerMoves(offer, next)...)
		changes.Events = append(changes.Events, offerTransitionEvent(next, systemActor(), now))
	}
	return changes, undo, nil
}

func (c *Coordinator) lockListing(ctx context.Context, listingID uuid.UUID) (func(), error) {
	if listingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing id is required")
	}
	return c.listings.Acquire(ctx, listingID)
}

// save persists the change set. When the write fails the stock movement is
// reversed through undo so no half-applied state remains visible.
func (c *Coordinator) save(ctx context.Context, changes ChangeSet, undo func(context.Context) error) error {
	if changes.IsEmpty() {
		return nil
	}
	err := c.repo.Commit(ctx, changes)
	if err == nil {
		return nil
	}
	if undo != nil {
		if undoErr := undo(context.WithoutCancel(ctx)); undoErr != nil {
			c.logg.Error(ctx, "stock compensation failed after save error", undoErr)
		} else {
			c.logg.Warn(ctx, "stock compensated after save error")
		}
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "saving marketplace changes")
}

// loadItems reads the stored items with the given ids.
func (c *Coordinator) loadItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]market.Item, error) {
	out := make(map[uuid.UUID]market.Item, len(ids))
	for _, id := range ids {
		if _, ok := out[id]; ok {
			continue
		}
		item, err := c.repo.FindItem(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = item
	}
	return out, nil
}

// refresh resets the stock to stored state for everything a call on the
// listing can touch: the listed items, the extra ids, and the reserved
// items and tokens of every offer on the listing. It runs once per call,
// right after the listing lock is taken, so movements made later in the
// same call are kept.
func (c *Coordinator) refresh(ctx context.Context, listing market.Listing, extra ...uuid.UUID) error {
	all, err := c.repo.ListOffersByListing(ctx, listing.ID)
	if err != nil {
		return err
	}
	ids := append(lineItemIDs(listing.Items), extra...)
	for _, offer := range all {
		for _, tok := range offer.Reservations {
			ids = append(ids, tok.ItemID)
		}
	}
	items, err := c.loadItems(ctx, ids)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := c.stock.Replace(ctx, item); err != nil {
			return err
		}
	}
	for _, offer := range all {
		if err := c.adoptOffer(offer); err != nil {
			return err
		}
	}
	return nil
}

// adoptOffer sets the offer's tokens to what its stored status holds.
func (c *Coordinator) adoptOffer(offer market.Offer) error {
	if len(offer.Reservations) == 0 {
		return nil
	}
	switch offer.Status {
	case enums.OfferStatusPending:
		return c.stock.Adopt(offer.Reservations...)
	case enums.OfferStatusAccepted:
		return c.stock.AdoptCommitted(offer.Reservations...)
	default:
		c.stock.Forget(offer.Reservations...)
		return nil
	}
}

func lineItemIDs(items []market.LineItem) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(items))
	for _, li := range items {
		ids = append(ids, li.ItemID)
	}
	return ids
}
