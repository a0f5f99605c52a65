package listings

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost/internal/market"
	"github.com/angelmondragon/tradepost/internal/pickups"
	pkgerrors "github.com/angelmondragon/tradepost/pkg/errors"
	"github.com/angelmondragon/tradepost/pkg/outbox"
)

// ProposePickup opens a new handshake for an accepted offer, typically
// after the previous proposal was declined or cancelled.
func (c *Coordinator) ProposePickup(ctx context.Context, offerID, actorID uuid.UUID, proposal pickups.Proposal) (Result, error) {
	return c.withOffer(ctx, offerID, func(ctx context.Context, listing market.Listing, offer market.Offer) (Result, error) {
		if actorID != listing.CreatorID {
			return Result{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "only the listing creator can propose a pickup")
		}
		existing, err := c.repo.FindPickupByOffer(ctx, offer.ID)
		if err != nil {
			return Result{}, err
		}
		p, err := c.pickups.Propose(listing, offer, proposal, existing)
		if err != nil {
			return Result{}, err
		}
		return c.savePickup(ctx, p, actor(actorID, outbox.RoleCreator), true)
	})
}

// SelectPickupTime records the offering user's chosen slot.
func (c *Coordinator) SelectPickupTime(ctx context.Context, pickupID, actorID uuid.UUID, date time.Time, at market.TimeOfDay) (Result, error) {
	return c.withPickup(ctx, pickupID, func(ctx context.Context, p market.Pickup) (Result, error) {
		next, err := c.pickups.SelectTime(p, actorID, date, at)
		if err != nil {
			return Result{}, err
		}
		return c.savePickup(ctx, next, actor(actorID, outbox.RoleOfferer), false)
	})
}

func (c *Coordinator) AcceptPickup(ctx context.Context, pickupID, actorID uuid.UUID) (Result, error) {
	return c.withPickup(ctx, pickupID, func(ctx context.Context, p market.Pickup) (Result, error) {
		next, err := c.pickups.Accept(p, actorID)
		if err != nil {
			return Result{}, err
		}
		return c.savePickup(ctx, next, actor(actorID, outbox.RoleOfferer), true)
	})
}

func (c *Coordinator) DeclinePickup(ctx context.Context, pickupID, actorID uuid.UUID) (Result, error) {
	return c.withPickup(ctx, pickupID, func(ctx context.Context, p market.Pickup) (Result, error) {
		next, err := c.pickups.Decline(p, actorID)
		if err != nil {
			return Result{}, err
		}
		return c.savePickup(ctx, next, actor(actorID, outbox.RoleOfferer), true)
	})
}

// CompletePickup finishes the hand-off and completes the offer with it.
func (c *Coordinator) CompletePickup(ctx context.Context, pickupID, actorID uuid.UUID) (Result, error) {
	p, err := c.repo.FindPickup(ctx, pickupID)
	if err != nil {
		return Result{}, err
	}
	return c.withOffer(ctx, p.OfferID, func(ctx context.Context, listing market.Listing, offer market.Offer) (Result, error) {
		current, err := c.repo.FindPickup(ctx, pickupID)
		if err != nil {
			return Result{}, err
		}
		done, err := c.pickups.Complete(current, actorID)
		if err != nil {
			return Result{}, err
		}
		next, err := c.offers.Complete(listing, offer, actorID)
		if err != nil {
			return Result{}, err
		}
		by := actor(actorID, roleFor(listing, actorID))
		extra := ChangeSet{
			Pickups: []market.Pickup{done},
			Events:  []outbox.DomainEvent{pickupEvent(done, by, done.UpdatedAt)},
		}
		return c.finishOffer(ctx, listing, offer, next, by, extra)
	})
}

// CancelPickup calls off a confirmed pickup. The offer stays accepted so
// the creator can propose again.
func (c *Coordinator) CancelPickup(ctx context.Context, pickupID, actorID uuid.UUID) (Result, error) {
	return c.withPickup(ctx, pickupID, func(ctx context.Context, p market.Pickup) (Result, error) {
		next, err := c.pickups.Cancel(p, actorID)
		if err != nil {
			return Result{}, err
		}
		role := outbox.RoleOfferer
		if actorID == p.ProposerID {
			role = outbox.RoleCreator
		}
		return c.savePickup(ctx, next, actor(actorID, role), true)
	})
}

func (c *Coordinator) withPickup(ctx context.Context, pickupID uuid.UUID, fn func(context.Context, market.Pickup) (Result, error)) (Result, error) {
	peek, err := c.repo.FindPickup(ctx, pickupID)
	if err != nil {
		return Result{}, err
	}
	unlock, err := c.lockListing(ctx, peek.ListingID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	p, err := c.repo.FindPickup(ctx, pickupID)
	if err != nil {
		return Result{}, err
	}
	ctx = c.logg.WithFields(c.logg.WithOfferID(ctx, p.OfferID), map[string]any{"pickup_id": p.ID.String()})
	return fn(ctx, p)
}

func (c *Coordinator) savePickup(ctx context.Context, p market.Pickup, by *outbox.ActorRef, emit bool) (Result, error) {
	changes := ChangeSet{Pickups: []market.Pickup{p}}
	if emit {
		changes.Events = []outbox.DomainEvent{pickupEvent(p, by, p.UpdatedAt)}
	}
	if err := c.save(ctx, changes, nil); err != nil {
		return Result{}, err
	}
	c.logg.Info(c.logg.WithField(ctx, "status", p.Status), "pickup updated")
	return Result{Pickup: &p, Events: changes.Events}, nil
}
