package listings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tradepost/internal/auction"
	"github.com/angelmondragon/tradepost/internal/market"
	"github.com/angelmondragon/tradepost/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost/pkg/errors"
	"github.com/angelmondragon/tradepost/pkg/outbox"
)

// PlaceBid applies a bid under the listing lock, so concurrent bids are
// judged against each other in the order they obtain it.
func (c *Coordinator) PlaceBid(ctx context.Context, listingID, bidderID uuid.UUID, amount decimal.Decimal) (Result, error) {
	unlock, err := c.lockListing(ctx, listingID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	listing, err := c.repo.FindListing(ctx, listingID)
	if err != nil {
		return Result{}, err
	}
	next, bid, err := c.auctions.PlaceBid(listing, bidderID, amount, c.now())
	if err != nil {
		return Result{}, err
	}

	events := []outbox.DomainEvent{bidPlacedEvent(bid)}
	changes := ChangeSet{Listings: []market.Listing{next}, Bids: []auction.Bid{bid}, Events: events}
	if err := c.save(ctx, changes, nil); err != nil {
		return Result{}, err
	}
	ctx = c.logg.WithFields(c.logg.WithListingID(ctx, listing.ID), map[string]any{
		"bid_id":   bid.ID.String(),
		"amount":   bid.Amount.String(),
		"sequence": bid.Sequence,
	})
	c.logg.Info(ctx, "bid placed")
	return Result{Listing: &next, Bid: &bid, Events: events}, nil
}

// CloseAuction settles an ended auction. With the reserve met the highest
// bidder receives an accepted offer holding the listed items and the
// listing completes; otherwise the listing expires. Closed listings are
// returned unchanged without events.
func (c *Coordinator) CloseAuction(ctx context.Context, listingID uuid.UUID) (Result, error) {
	return c.closeAuction(ctx, listingID, c.now())
}

func (c *Coordinator) closeAuction(ctx context.Context, listingID uuid.UUID, now time.Time) (Result, error) {
	unlock, err := c.lockListing(ctx, listingID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	listing, err := c.repo.FindListing(ctx, listingID)
	if err != nil {
		return Result{}, err
	}
	if listing.Type != enums.ListingTypeAuction || listing.Auction == nil {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "listing is not an auction")
	}
	if listing.Status.IsClosed() {
		return Result{Listing: &listing}, nil
	}
	if listing.Status != enums.ListingStatusActive {
		return Result{}, pkgerrors.Newf(pkgerrors.CodeStateConflict, "auction is %s, expected active", listing.Status).
			WithDetails(map[string]any{"listing_id": listing.ID, "status": listing.Status})
	}
	outcome := auction.Outcome(listing, now)
	if outcome == auction.ResultOpen {
		return Result{}, pkgerrors.New(pkgerrors.CodeStateConflict, "auction is still running").
			WithDetails(map[string]any{"listing_id": listing.ID, "end_time": listing.Auction.EndTime})
	}
	ctx = c.logg.WithFields(c.logg.WithListingID(ctx, listing.ID), map[string]any{"outcome": outcome.String()})
	if err := c.refresh(ctx, listing); err != nil {
		return Result{}, err
	}

	changes, undoExpired, err := c.expirePending(ctx, listing.ID, now)
	if err != nil {
		return Result{}, err
	}

	next := listing.Clone()
	next.UpdatedAt = now
	next.Status = enums.ListingStatusExpired

	var (
		winner *market.Offer
		pickup *market.Pickup
	)
	if outcome == auction.ResultWinner {
		awarded, err := c.offers.Award(ctx, listing)
		switch {
		case err == nil:
			winner = &awarded
			next.Status = enums.ListingStatusCompleted
		case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock):
			c.logg.Warn(c.logg.WithField(ctx, "reason", err.Error()), "auction winner could not be awarded, expiring listing")
		default:
			_ = undoExpired(ctx)
			return Result{}, err
		}
	}

	undo := undoExpired
	if winner != nil {
		prop := c.settings.Pickup.DefaultProposal(now)
		proposed, err := c.pickups.Propose(listing, *winner, prop, nil)
		if err != nil {
			_ = c.offers.Unwind(ctx, market.Offer{}, *winner)
			_ = undoExpired(ctx)
			return Result{}, err
		}
		pickup = &proposed
		awarded := *winner
		undo = func(ctx context.Context) error {
			if err := c.offers.Unwind(ctx, market.Offer{}, awarded); err != nil {
				return err
			}
			return undoExpired(ctx)
		}
		changes.Offers = append(changes.Offers, awarded)
		changes.Pickups = append(changes.Pickups, proposed)
		changes.Stock = append(changes.Stock, offerMoves(market.Offer{}, awarded)...)
		changes.Events = append(changes.Events,
			offerTransitionEvent(awarded, systemActor(), now),
			pickupEvent(proposed, systemActor(), now),
		)
	}
	changes.Listings = append(changes.Listings, next)
	changes.Events = append(changes.Events, auctionEndedEvent(next, winner, now))

	if err := c.save(ctx, changes, undo); err != nil {
		return Result{}, err
	}
	c.logg.Info(c.logg.WithField(ctx, "status", next.Status), "auction closed")
	return Result{Listing: &next, Offer: winner, Pickup: pickup, Events: changes.Events}, nil
}
