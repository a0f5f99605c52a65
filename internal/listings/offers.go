package listings

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost/internal/market"
	"github.com/angelmondragon/tradepost/internal/offers"
	"github.com/angelmondragon/tradepost/internal/pickups"
	"github.com/angelmondragon/tradepost/pkg/enums"
	"github.com/angelmondragon/tradepost/pkg/outbox"
)

// CreateOffer validates an offer against its listing and reserves the
// requested and traded items.
func (c *Coordinator) CreateOffer(ctx context.Context, listingID uuid.UUID, input offers.CreateInput) (Result, error) {
	unlock, err := c.lockListing(ctx, listingID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	listing, err := c.repo.FindListing(ctx, listingID)
	if err != nil {
		return Result{}, err
	}
	if err := c.refresh(ctx, listing, lineItemIDs(input.TradeItems)...); err != nil {
		return Result{}, err
	}

	offer, err := c.offers.Create(ctx, listing, input)
	if err != nil {
		return Result{}, err
	}
	undo := func(ctx context.Context) error {
		return c.offers.Unwind(ctx, market.Offer{}, offer)
	}

	events := []outbox.DomainEvent{offerTransitionEvent(offer, actor(input.OfferingUserID, outbox.RoleOfferer), offer.CreatedAt)}
	changes := ChangeSet{
		Offers: []market.Offer{offer},
		Stock:  offerMoves(market.Offer{}, offer),
		Events: events,
	}
	if err := c.save(ctx, changes, undo); err != nil {
		return Result{}, err
	}
	ctx = c.logg.WithOfferID(c.logg.WithListingID(ctx, listing.ID), offer.ID)
	c.logg.Info(ctx, "offer created")
	return Result{Offer: &offer, Events: events}, nil
}

// AcceptOffer commits the offer's stock and opens the pickup handshake.
// A nil proposal falls back to the configured default dates and window.
// Sibling offers stay pending; a later accept re-checks their reservations.
func (c *Coordinator) AcceptOffer(ctx context.Context, offerID, actorID uuid.UUID, proposal *pickups.Proposal) (Result, error) {
	return c.withOffer(ctx, offerID, func(ctx context.Context, listing market.Listing, offer market.Offer) (Result, error) {
		next, err := c.offers.Accept(ctx, listing, offer, actorID)
		if err != nil {
			return Result{}, err
		}
		undo := func(ctx context.Context) error {
			return c.offers.Unwind(ctx, offer, next)
		}

		now := c.now()
		prop := c.settings.Pickup.DefaultProposal(now)
		if proposal != nil {
			prop = *proposal
		}
		existing, err := c.repo.FindPickupByOffer(ctx, next.ID)
		if err != nil {
			_ = undo(ctx)
			return Result{}, err
		}
		pickup, err := c.pickups.Propose(listing, next, prop, existing)
		if err != nil {
			_ = undo(ctx)
			return Result{}, err
		}

		by := actor(actorID, outbox.RoleCreator)
		events := []outbox.DomainEvent{
			offerTransitionEvent(next, by, now),
			pickupEvent(pickup, by, now),
		}
		changes := ChangeSet{
			Offers:  []market.Offer{next},
			Pickups: []market.Pickup{pickup},
			Stock:   offerMoves(offer, next),
			Events:  events,
		}
		if err := c.save(ctx, changes, undo); err != nil {
			return Result{}, err
		}
		c.logg.Info(ctx, "offer accepted")
		return Result{Offer: &next, Pickup: &pickup, Events: events}, nil
	})
}

// RejectOffer declines a pending offer on the creator's behalf.
func (c *Coordinator) RejectOffer(ctx context.Context, offerID, actorID uuid.UUID) (Result, error) {
	return c.withOffer(ctx, offerID, func(ctx context.Context, listing market.Listing, offer market.Offer) (Result, error) {
		next, err := c.offers.Reject(ctx, listing, offer, actorID)
		if err != nil {
			return Result{}, err
		}
		return c.applyOffer(ctx, offer, next, actor(actorID, outbox.RoleCreator), ChangeSet{})
	})
}

// WithdrawOffer pulls a pending offer on the offerer's behalf.
func (c *Coordinator) WithdrawOffer(ctx context.Context, offerID, actorID uuid.UUID) (Result, error) {
	return c.withOffer(ctx, offerID, func(ctx context.Context, _ market.Listing, offer market.Offer) (Result, error) {
		next, err := c.offers.Withdraw(ctx, offer, actorID)
		if err != nil {
			return Result{}, err
		}
		return c.applyOffer(ctx, offer, next, actor(actorID, outbox.RoleOfferer), ChangeSet{})
	})
}

// ExpireOffer expires a pending offer. Offers in any other status are
// returned untouched with no events, so sweeps may repeat the call.
func (c *Coordinator) ExpireOffer(ctx context.Context, offerID uuid.UUID) (Result, error) {
	return c.withOffer(ctx, offerID, func(ctx context.Context, _ market.Listing, offer market.Offer) (Result, error) {
		next, changed, err := c.offers.Expire(ctx, offer)
		if err != nil {
			return Result{}, err
		}
		if !changed {
			return Result{Offer: &next}, nil
		}
		return c.applyOffer(ctx, offer, next, systemActor(), ChangeSet{})
	})
}

// CompleteOffer records that an accepted offer was handed over. An active
// pickup is settled with it, and a listing whose units are all gone is
// marked completed.
func (c *Coordinator) CompleteOffer(ctx context.Context, offerID, actorID uuid.UUID) (Result, error) {
	return c.withOffer(ctx, offerID, func(ctx context.Context, listing market.Listing, offer market.Offer) (Result, error) {
		next, err := c.offers.Complete(listing, offer, actorID)
		if err != nil {
			return Result{}, err
		}
		now := c.now()
		by := actor(actorID, roleFor(listing, actorID))

		var extra ChangeSet
		pickup, err := c.repo.FindPickupByOffer(ctx, offer.ID)
		if err != nil {
			return Result{}, err
		}
		if pickup != nil {
			switch pickup.Status {
			case enums.PickupStatusAccepted:
				settled, err := c.pickups.Complete(*pickup, actorID)
				if err != nil {
					return Result{}, err
				}
				extra.Pickups = append(extra.Pickups, settled)
				extra.Events = append(extra.Events, pickupEvent(settled, by, now))
			default:
				if voided, changed := c.pickups.Void(*pickup); changed {
					extra.Pickups = append(extra.Pickups, voided)
					extra.Events = append(extra.Events, pickupEvent(voided, by, now))
				}
			}
		}
		return c.finishOffer(ctx, listing, offer, next, by, extra)
	})
}

// CancelOffer calls off an accepted offer and returns its units to stock.
// Any active pickup is cancelled with it.
func (c *Coordinator) CancelOffer(ctx context.Context, offerID, actorID uuid.UUID) (Result, error) {
	return c.withOffer(ctx, offerID, func(ctx context.Context, listing market.Listing, offer market.Offer) (Result, error) {
		next, err := c.offers.Cancel(ctx, listing, offer, actorID)
		if err != nil {
			return Result{}, err
		}
		by := actor(actorID, roleFor(listing, actorID))

		var extra ChangeSet
		pickup, err := c.repo.FindPickupByOffer(ctx, offer.ID)
		if err != nil {
			_ = c.offers.Unwind(ctx, offer, next)
			return Result{}, err
		}
		if pickup != nil {
			if voided, changed := c.pickups.Void(*pickup); changed {
				extra.Pickups = append(extra.Pickups, voided)
				extra.Events = append(extra.Events, pickupEvent(voided, by, c.now()))
			}
		}
		return c.applyOffer(ctx, offer, next, by, extra)
	})
}

// withOffer resolves the offer's listing, takes the listing lock and
// re-reads both, along with the stock, so fn works on current state.
func (c *Coordinator) withOffer(ctx context.Context, offerID uuid.UUID, fn func(context.Context, market.Listing, market.Offer) (Result, error)) (Result, error) {
	peek, err := c.repo.FindOffer(ctx, offerID)
	if err != nil {
		return Result{}, err
	}
	unlock, err := c.lockListing(ctx, peek.ListingID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	offer, err := c.repo.FindOffer(ctx, offerID)
	if err != nil {
		return Result{}, err
	}
	listing, err := c.repo.FindListing(ctx, offer.ListingID)
	if err != nil {
		return Result{}, err
	}
	if err := c.refresh(ctx, listing); err != nil {
		return Result{}, err
	}
	ctx = c.logg.WithOfferID(c.logg.WithListingID(ctx, listing.ID), offer.ID)
	return fn(ctx, listing, offer)
}

// applyOffer persists one offer transition together with extra rows,
// undoing the stock movement if the write fails.
func (c *Coordinator) applyOffer(ctx context.Context, prev, next market.Offer, by *outbox.ActorRef, extra ChangeSet) (Result, error) {
	undo := func(ctx context.Context) error {
		return c.offers.Unwind(ctx, prev, next)
	}
	changes := extra
	changes.Offers = append(changes.Offers, next)
	changes.Stock = append(changes.Stock, offerMoves(prev, next)...)
	changes.Events = append([]outbox.DomainEvent{offerTransitionEvent(next, by, next.UpdatedAt)}, extra.Events...)
	if err := c.save(ctx, changes, undo); err != nil {
		return Result{}, err
	}
	c.logg.Info(c.logg.WithField(ctx, "status", next.Status), "offer transitioned")

	res := Result{Offer: &next, Events: changes.Events}
	if len(changes.Pickups) > 0 {
		p := changes.Pickups[0]
		res.Pickup = &p
	}
	if len(changes.Listings) > 0 {
		l := changes.Listings[0]
		res.Listing = &l
	}
	return res, nil
}

// finishOffer persists a completed offer and closes the listing once none
// of its units are left and no other accepted offer is outstanding.
func (c *Coordinator) finishOffer(ctx context.Context, listing market.Listing, prev, next market.Offer, by *outbox.ActorRef, extra ChangeSet) (Result, error) {
	if listing.Type == enums.ListingTypeAuction || !listing.IsActive() {
		return c.applyOffer(ctx, prev, next, by, extra)
	}
	soldOut, err := c.isSoldOut(ctx, listing, next.ID)
	if err != nil {
		return Result{}, err
	}
	if !soldOut {
		return c.applyOffer(ctx, prev, next, by, extra)
	}

	now := c.now()
	closing, undo, err := c.expirePending(ctx, listing.ID, now)
	if err != nil {
		return Result{}, err
	}
	done := listing.Clone()
	done.Status = enums.ListingStatusCompleted
	done.UpdatedAt = now

	extra.Listings = append(extra.Listings, done)
	extra.Offers = append(extra.Offers, closing.Offers...)
	extra.Stock = append(extra.Stock, closing.Stock...)
	extra.Events = append(extra.Events, closing.Events...)
	res, err := c.applyOffer(ctx, prev, next, by, extra)
	if err != nil {
		if undoErr := undo(context.WithoutCancel(ctx)); undoErr != nil {
			c.logg.Error(ctx, "restoring expired offers failed", undoErr)
		}
		return Result{}, err
	}
	c.logg.Info(ctx, "listing sold out")
	return res, nil
}

func (c *Coordinator) isSoldOut(ctx context.Context, listing market.Listing, completing uuid.UUID) (bool, error) {
	snaps, err := c.loadItems(ctx, lineItemIDs(listing.Items))
	if err != nil {
		return false, err
	}
	for _, li := range listing.Items {
		if item, ok := snaps[li.ItemID]; !ok || item.TotalQuantity > 0 {
			return false, nil
		}
	}
	siblings, err := c.repo.ListOffersByListing(ctx, listing.ID)
	if err != nil {
		return false, err
	}
	for _, o := range siblings {
		if o.ID != completing && o.Status == enums.OfferStatusAccepted {
			return false, nil
		}
	}
	return true, nil
}
