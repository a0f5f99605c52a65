package listings

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost/internal/auction"
	"github.com/angelmondragon/tradepost/internal/market"
	"github.com/angelmondragon/tradepost/pkg/outbox"
)

// ChangeSet is everything one coordinator call wants to persist. It is
// written in a single unit of work; events are queued alongside the rows.
//
// Items are new items only. Quantities of stored items change through Stock,
// never by overwriting a row.
type ChangeSet struct {
	Items    []market.Item
	Stock    []StockMove
	Listings []market.Listing
	Offers   []market.Offer
	Pickups  []market.Pickup
	Bids     []auction.Bid
	Events   []outbox.DomainEvent
}

func (c ChangeSet) IsEmpty() bool {
	return len(c.Items) == 0 && len(c.Stock) == 0 && len(c.Listings) == 0 && len(c.Offers) == 0 &&
		len(c.Pickups) == 0 && len(c.Bids) == 0 && len(c.Events) == 0
}

// Repository loads and stores marketplace aggregates. Find methods return a
// NOT_FOUND error for unknown ids; FindPickupByOffer returns nil instead.
//
// Commit is all or nothing and is safe against writers in other processes:
//   - a listing, offer or pickup with Version 0 is inserted; any other
//     version must match the stored row, which then moves to Version+1
//   - a stock move applies only if the item keeps 0 <= available <= total
//
// A lost race on either fails with RESERVATION_CONFLICT or
// INSUFFICIENT_STOCK and nothing is written.
type Repository interface {
	FindItem(ctx context.Context, id uuid.UUID) (market.Item, error)
	FindListing(ctx context.Context, id uuid.UUID) (market.Listing, error)
	FindOffer(ctx context.Context, id uuid.UUID) (market.Offer, error)
	FindPickup(ctx context.Context, id uuid.UUID) (market.Pickup, error)
	FindPickupByOffer(ctx context.Context, offerID uuid.UUID) (*market.Pickup, error)
	ListOffersByListing(ctx context.Context, listingID uuid.UUID) ([]market.Offer, error)
	ListPendingOffersBefore(ctx context.Context, cutoff time.Time, limit int) ([]market.Offer, error)
	ListPendingOffersOnClosedListings(ctx context.Context, limit int) ([]market.Offer, error)
	ListEndedAuctions(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	Commit(ctx context.Context, changes ChangeSet) error
}
