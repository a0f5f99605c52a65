// Package memory keeps marketplace state in process. It backs tests and
// single-node development runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost/internal/auction"
	"github.com/angelmondragon/tradepost/internal/listings"
	"github.com/angelmondragon/tradepost/internal/market"
	"github.com/angelmondragon/tradepost/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost/pkg/errors"
	"github.com/angelmondragon/tradepost/pkg/outbox"
)

type Repository struct {
	mu       sync.RWMutex
	items    map[uuid.UUID]market.Item
	listings map[uuid.UUID]market.Listing
	offers   map[uuid.UUID]market.Offer
	pickups  map[uuid.UUID]market.Pickup
	bids     map[uuid.UUID][]auction.Bid
	events   []outbox.DomainEvent
}

var _ listings.Repository = (*Repository)(nil)

func NewRepository() *Repository {
	return &Repository{
		items:    make(map[uuid.UUID]market.Item),
		listings: make(map[uuid.UUID]market.Listing),
		offers:   make(map[uuid.UUID]market.Offer),
		pickups:  make(map[uuid.UUID]market.Pickup),
		bids:     make(map[uuid.UUID][]auction.Bid),
	}
}

func notFound(kind string, id uuid.UUID) error {
	return pkgerrors.Newf(pkgerrors.CodeNotFound, "%s not found", kind).
		WithDetails(map[string]any{"id": id})
}

func (r *Repository) FindItem(_ context.Context, id uuid.UUID) (market.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[id]
	if !ok {
		return market.Item{}, notFound("item", id)
	}
	return item, nil
}

func (r *Repository) FindListing(_ context.Context, id uuid.UUID) (market.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	listing, ok := r.listings[id]
	if !ok {
		return market.Listing{}, notFound("listing", id)
	}
	return listing.Clone(), nil
}

func (r *Repository) FindOffer(_ context.Context, id uuid.UUID) (market.Offer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	offer, ok := r.offers[id]
	if !ok {
		return market.Offer{}, notFound("offer", id)
	}
	return offer.Clone(), nil
}

func (r *Repository) FindPickup(_ context.Context, id uuid.UUID) (market.Pickup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pickups[id]
	if !ok {
		return market.Pickup{}, notFound("pickup", id)
	}
	return p.Clone(), nil
}

// FindPickupByOffer prefers an active pickup, then the most recent one.
func (r *Repository) FindPickupByOffer(_ context.Context, offerID uuid.UUID) (*market.Pickup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var found *market.Pickup
	for _, p := range r.pickups {
		if p.OfferID != offerID {
			continue
		}
		candidate := p.Clone()
		switch {
		case found == nil:
			found = &candidate
		case candidate.Status.IsActive() && !found.Status.IsActive():
			found = &candidate
		case candidate.Status.IsActive() == found.Status.IsActive() && candidate.CreatedAt.After(found.CreatedAt):
			found = &candidate
		}
	}
	return found, nil
}

func (r *Repository) ListOffersByListing(_ context.Context, listingID uuid.UUID) ([]market.Offer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []market.Offer
	for _, o := range r.offers {
		if o.ListingID == listingID {
			out = append(out, o.Clone())
		}
	}
	sortOffers(out)
	return out, nil
}

func (r *Repository) ListPendingOffersBefore(_ context.Context, cutoff time.Time, limit int) ([]market.Offer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []market.Offer
	for _, o := range r.offers {
		if o.Status == enums.OfferStatusPending && o.CreatedAt.Before(cutoff) {
			out = append(out, o.Clone())
		}
	}
	sortOffers(out)
	return truncate(out, limit), nil
}

func (r *Repository) ListPendingOffersOnClosedListings(_ context.Context, limit int) ([]market.Offer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []market.Offer
	for _, o := range r.offers {
		if o.Status != enums.OfferStatusPending {
			continue
		}
		if l, ok := r.listings[o.ListingID]; ok && l.Status.IsClosed() {
			out = append(out, o.Clone())
		}
	}
	sortOffers(out)
	return truncate(out, limit), nil
}

func (r *Repository) ListEndedAuctions(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ended []market.Listing
	for _, l := range r.listings {
		if l.Type == enums.ListingTypeAuction && l.Status == enums.ListingStatusActive &&
			l.Auction != nil && l.Auction.EndTime.Before(now) {
			ended = append(ended, l)
		}
	}
	sort.Slice(ended, func(i, j int) bool {
		return ended[i].Auction.EndTime.Before(ended[j].Auction.EndTime)
	})
	if limit > 0 && len(ended) > limit {
		ended = ended[:limit]
	}
	ids := make([]uuid.UUID, 0, len(ended))
	for _, l := range ended {
		ids = append(ids, l.ID)
	}
	return ids, nil
}

// Commit applies the whole change set under one lock with the same guards
// as the SQL store: rows must still be at the version they were read at and
// stock moves must keep 0 <= available <= total. Nothing is applied unless
// every guard holds.
func (r *Repository) Commit(_ context.Context, changes listings.ChangeSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	moved := make(map[uuid.UUID]market.Item)
	for _, m := range listings.NetStock(changes.Stock) {
		item, ok := r.items[m.ItemID]
		if !ok {
			for _, fresh := range changes.Items {
				if fresh.ID == m.ItemID {
					item, ok = fresh, true
				}
			}
		}
		avail, total := item.AvailableQuantity+m.Available, item.TotalQuantity+m.Total
		if !ok || avail < 0 || total < 0 || avail > total {
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, "item stock changed, not enough units left").
				WithDetails(map[string]any{"item_id": m.ItemID, "available_delta": m.Available, "total_delta": m.Total})
		}
		item.AvailableQuantity, item.TotalQuantity = avail, total
		item.Version++
		moved[item.ID] = item
	}
	for _, l := range changes.Listings {
		if err := checkVersion("listing", l.ID, l.Version, r.listings[l.ID].Version, hasKey(r.listings, l.ID)); err != nil {
			return err
		}
	}
	for _, o := range changes.Offers {
		if err := checkVersion("offer", o.ID, o.Version, r.offers[o.ID].Version, hasKey(r.offers, o.ID)); err != nil {
			return err
		}
	}
	for _, p := range changes.Pickups {
		if err := checkVersion("pickup", p.ID, p.Version, r.pickups[p.ID].Version, hasKey(r.pickups, p.ID)); err != nil {
			return err
		}
	}

	for _, item := range changes.Items {
		if _, ok := r.items[item.ID]; !ok {
			r.items[item.ID] = item
		}
	}
	for id, item := range moved {
		r.items[id] = item
	}
	for _, l := range changes.Listings {
		stored := l.Clone()
		stored.Version = l.Version + 1
		r.listings[l.ID] = stored
	}
	for _, o := range changes.Offers {
		stored := o.Clone()
		stored.Version = o.Version + 1
		r.offers[o.ID] = stored
	}
	for _, p := range changes.Pickups {
		stored := p.Clone()
		stored.Version = p.Version + 1
		r.pickups[p.ID] = stored
	}
	for _, b := range changes.Bids {
		r.bids[b.ListingID] = append(r.bids[b.ListingID], b)
	}
	r.events = append(r.events, changes.Events...)
	return nil
}

func checkVersion(kind string, id uuid.UUID, read, stored int64, exists bool) error {
	if (read == 0 && !exists) || (exists && read == stored) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeReservationConflict, kind+" changed concurrently, retry").
		WithDetails(map[string]any{kind + "_id": id})
}

func hasKey[V any](m map[uuid.UUID]V, id uuid.UUID) bool {
	_, ok := m[id]
	return ok
}

// Bids returns the bid history of a listing in sequence order.
func (r *Repository) Bids(listingID uuid.UUID) []auction.Bid {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]auction.Bid(nil), r.bids[listingID]...)
}

// Events returns every event committed so far.
func (r *Repository) Events() []outbox.DomainEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]outbox.DomainEvent(nil), r.events...)
}

func sortOffers(offers []market.Offer) {
	sort.Slice(offers, func(i, j int) bool {
		if offers[i].CreatedAt.Equal(offers[j].CreatedAt) {
			return offers[i].ID.String() < offers[j].ID.String()
		}
		return offers[i].CreatedAt.Before(offers[j].CreatedAt)
	})
}

func truncate(offers []market.Offer, limit int) []market.Offer {
	if limit > 0 && len(offers) > limit {
		return offers[:limit]
	}
	return offers
}
