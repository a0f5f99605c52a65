package listings_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tradepost/internal/market"
	"github.com/angelmondragon/tradepost/internal/offers"
	"github.com/angelmondragon/tradepost/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost/pkg/errors"
	"github.com/angelmondragon/tradepost/pkg/outbox/payloads"
)

func (h *harness) auction(t *testing.T, item market.Item, reserve *decimal.Decimal) market.Listing {
	t.Helper()
	return h.activeListing(t, market.Listing{
		CreatorID: h.creator,
		Type:      enums.ListingTypeAuction,
		Title:     "vintage lamp",
		Items:     []market.LineItem{{ItemID: item.ID, Quantity: 1}},
		Auction: &market.AuctionTerms{
			StartingPrice:       decimal.NewFromInt(10),
			ReservePrice:        reserve,
			MinimumBidIncrement: decimal.NewFromInt(1),
			Currency:            enums.CurrencyUSD,
			StartTime:           epoch.Add(-time.Hour),
			EndTime:             epoch.Add(24 * time.Hour),
			OfferPolicy:         market.TradeTerms{AcceptOtherOffers: true},
		},
	})
}

func TestBidsMustClimbByIncrement(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	item := h.item(t, h.creator, 1)
	listing := h.auction(t, item, nil)
	alice, bob := uuid.New(), uuid.New()

	res, err := h.coord.PlaceBid(ctx, listing.ID, alice, decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Bid.Sequence)
	require.Len(t, res.Events, 1)
	assert.Equal(t, enums.EventBidPlaced, res.Events[0].EventType)

	_, err = h.coord.PlaceBid(ctx, listing.ID, bob, decimal.RequireFromString("10.5"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeBidTooLow), "got %v", err)

	res, err = h.coord.PlaceBid(ctx, listing.ID, bob, decimal.NewFromInt(11))
	require.NoError(t, err)
	assert.True(t, res.Listing.Auction.HighestBid.Equal(decimal.NewFromInt(11)))
	assert.Equal(t, bob, *res.Listing.Auction.HighestBidderID)

	_, err = h.coord.PlaceBid(ctx, listing.ID, h.creator, decimal.NewFromInt(50))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSelfBid), "got %v", err)

	bids := h.repo.Bids(listing.ID)
	require.Len(t, bids, 2)
	assert.Equal(t, 2, bids[1].Sequence)
}

func TestConcurrentEqualBidsHaveOneWinner(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	item := h.item(t, h.creator, 1)
	listing := h.auction(t, item, nil)

	const bidders = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []uuid.UUID
		tooLow  int
	)
	start := make(chan struct{})
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func(bidder uuid.UUID) {
			defer wg.Done()
			<-start
			_, err := h.coord.PlaceBid(ctx, listing.ID, bidder, decimal.NewFromInt(25))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, bidder)
			case pkgerrors.IsCode(err, pkgerrors.CodeBidTooLow):
				tooLow++
			default:
				t.Errorf("unexpected error %v", err)
			}
		}(uuid.New())
	}
	close(start)
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, bidders-1, tooLow)

	stored, err := h.coord.Listing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Auction.BidCount)
	assert.True(t, stored.Auction.HighestBid.Equal(decimal.NewFromInt(25)))
	assert.Equal(t, winners[0], *stored.Auction.HighestBidderID)
	require.Len(t, h.repo.Bids(listing.ID), 1)
}

func TestAuctionCannotBeBidAfterEnd(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	item := h.item(t, h.creator, 1)
	listing := h.auction(t, item, nil)

	h.clock.Advance(25 * time.Hour)
	for _, amount := range []int64{10, 1000} {
		_, err := h.coord.PlaceBid(ctx, listing.ID, uuid.New(), decimal.NewFromInt(amount))
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAuctionEnded), "got %v", err)
	}
}

func TestCloseAuctionAwardsHighestBidder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	item := h.item(t, h.creator, 1)
	reserve := decimal.NewFromInt(12)
	listing := h.auction(t, item, &reserve)
	winner := uuid.New()

	_, err := h.coord.PlaceBid(ctx, listing.ID, uuid.New(), decimal.NewFromInt(10))
	require.NoError(t, err)
	_, err = h.coord.PlaceBid(ctx, listing.ID, winner, decimal.NewFromInt(15))
	require.NoError(t, err)

	_, err = h.coord.CloseAuction(ctx, listing.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "running auction must not close, got %v", err)

	h.clock.Advance(25 * time.Hour)
	res, err := h.coord.CloseAuction(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ListingStatusCompleted, res.Listing.Status)
	require.NotNil(t, res.Offer)
	assert.Equal(t, winner, res.Offer.OfferingUserID)
	assert.Equal(t, enums.OfferStatusAccepted, res.Offer.Status)
	assert.True(t, res.Offer.Amount.Amount.Equal(decimal.NewFromInt(15)))
	require.NotNil(t, res.Pickup)
	assert.Equal(t, winner, res.Pickup.RecipientID)
	assert.Equal(t, enums.EventAuctionEnded, res.Events[len(res.Events)-1].EventType)

	got := h.available(t, item.ID)
	assert.Equal(t, 0, got.TotalQuantity)
	assert.Equal(t, 0, got.AvailableQuantity)

	again, err := h.coord.CloseAuction(ctx, listing.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Events)
	assert.Equal(t, 0, h.available(t, item.ID).TotalQuantity, "closing twice must not commit twice")
}

func TestCloseAuctionBelowReserveExpiresListing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	item := h.item(t, h.creator, 1)
	reserve := decimal.NewFromInt(100)
	listing := h.auction(t, item, &reserve)

	trader := uuid.New()
	swap := h.item(t, trader, 1)
	offerRes, err := h.coord.CreateOffer(ctx, listing.ID, offers.CreateInput{
		OfferingUserID: trader,
		TradeItems:     []market.LineItem{{ItemID: swap.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, h.available(t, swap.ID).AvailableQuantity)

	_, err = h.coord.PlaceBid(ctx, listing.ID, uuid.New(), decimal.NewFromInt(20))
	require.NoError(t, err)

	h.clock.Advance(25 * time.Hour)
	sweep, err := h.coord.CloseEndedAuctions(ctx, h.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, sweep.Processed)

	closed, err := h.coord.Listing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ListingStatusExpired, closed.Status)
	assert.Equal(t, 1, h.available(t, item.ID).TotalQuantity)

	expired, err := h.coord.Offer(ctx, offerRes.Offer.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OfferStatusExpired, expired.Status)
	assert.Equal(t, 1, h.available(t, swap.ID).AvailableQuantity)

	again, err := h.coord.CloseEndedAuctions(ctx, h.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, again.Processed)
}

func TestAuctionWithoutBidsExpires(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	item := h.item(t, h.creator, 1)
	listing := h.auction(t, item, nil)

	h.clock.Advance(25 * time.Hour)
	res, err := h.coord.CloseAuction(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ListingStatusExpired, res.Listing.Status)
	assert.Nil(t, res.Offer)

	last := res.Events[len(res.Events)-1]
	ended, ok := last.Data.(payloads.AuctionEndedEvent)
	require.True(t, ok, "unexpected payload %T", last.Data)
	assert.True(t, ended.ReserveMet, "no reserve counts as met")
	assert.Zero(t, ended.BidCount)
	assert.Nil(t, ended.WinnerID)
}

func TestAuctionRejectsRequestsForCoreItems(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	item := h.item(t, h.creator, 1)
	listing := h.auction(t, item, nil)

	_, err := h.coord.CreateOffer(ctx, listing.ID, offers.CreateInput{
		OfferingUserID: uuid.New(),
		Items:          []market.LineItem{{ItemID: item.ID, Quantity: 1}},
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
	assert.Equal(t, 1, h.available(t, item.ID).AvailableQuantity)
}
