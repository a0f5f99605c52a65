package listings

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost/internal/market"
)

// Listing, Offer and Pickup expose read access for the request layer.
func (c *Coordinator) Listing(ctx context.Context, id uuid.UUID) (market.Listing, error) {
	return c.repo.FindListing(ctx, id)
}

func (c *Coordinator) Offer(ctx context.Context, id uuid.UUID) (market.Offer, error) {
	return c.repo.FindOffer(ctx, id)
}

func (c *Coordinator) Pickup(ctx context.Context, id uuid.UUID) (market.Pickup, error) {
	return c.repo.FindPickup(ctx, id)
}

// Offers lists the offers on a listing. Only the creator sees all of them;
// anyone else sees their own.
func (c *Coordinator) Offers(ctx context.Context, listingID, viewerID uuid.UUID) ([]market.Offer, error) {
	listing, err := c.repo.FindListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	all, err := c.repo.ListOffersByListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if viewerID == listing.CreatorID {
		return all, nil
	}
	mine := make([]market.Offer, 0)
	for _, o := range all {
		if o.OfferingUserID == viewerID {
			mine = append(mine, o)
		}
	}
	return mine, nil
}

// Item returns the stored quantities of an item.
func (c *Coordinator) Item(ctx context.Context, id uuid.UUID) (market.Item, error) {
	return c.repo.FindItem(ctx, id)
}
