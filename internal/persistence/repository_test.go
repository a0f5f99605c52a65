package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost/internal/auction"
	"github.com/angelmondragon/tradepost/internal/listings"
	"github.com/angelmondragon/tradepost/internal/market"
	"github.com/angelmondragon/tradepost/internal/offers"
	"github.com/angelmondragon/tradepost/internal/persistence"
	"github.com/angelmondragon/tradepost/internal/pickups"
	"github.com/angelmondragon/tradepost/internal/stock"
	"github.com/angelmondragon/tradepost/pkg/db"
	"github.com/angelmondragon/tradepost/pkg/db/models"
	"github.com/angelmondragon/tradepost/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost/pkg/errors"
	"github.com/angelmondragon/tradepost/pkg/outbox"
)

var epoch = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:persistence_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(models.All()...))
	return conn
}

func newRepo(t *testing.T) (*persistence.Repository, *gorm.DB) {
	t.Helper()
	conn := newTestDB(t)
	svc := outbox.NewService(outbox.NewRepository(conn), nil)
	repo, err := persistence.NewRepository(conn, db.Wrap(conn), svc)
	require.NoError(t, err)
	return repo, conn
}

func countEvents(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&n).Error)
	return n
}

func auctionListing(creator, itemID uuid.UUID, status enums.ListingStatus, end time.Time) market.Listing {
	reserve := decimal.NewFromInt(40)
	return market.Listing{
		ID:        uuid.New(),
		CreatorID: creator,
		Type:      enums.ListingTypeAuction,
		Status:    status,
		Title:     "lamp",
		Items:     []market.LineItem{{ItemID: itemID, Quantity: 1}},
		CreatedAt: epoch,
		UpdatedAt: epoch,
		Auction: &market.AuctionTerms{
			StartingPrice:       decimal.NewFromInt(10),
			ReservePrice:        &reserve,
			MinimumBidIncrement: decimal.NewFromInt(1),
			Currency:            enums.CurrencyUSD,
			StartTime:           epoch.Add(-time.Hour),
			EndTime:             end,
		},
	}
}

func TestNewRepositoryRequiresDependencies(t *testing.T) {
	conn := newTestDB(t)
	_, err := persistence.NewRepository(nil, db.Wrap(conn), outbox.NewService(outbox.NewRepository(conn), nil))
	require.Error(t, err)
	_, err = persistence.NewRepository(conn, nil, outbox.NewService(outbox.NewRepository(conn), nil))
	require.Error(t, err)
	_, err = persistence.NewRepository(conn, db.Wrap(conn), nil)
	require.Error(t, err)
}

func TestCommitRoundTripsAggregates(t *testing.T) {
	ctx := context.Background()
	repo, conn := newRepo(t)
	creator, buyer := uuid.New(), uuid.New()

	item := market.Item{ID: uuid.New(), OwnerID: creator, Title: "lamp", TotalQuantity: 2, AvailableQuantity: 1, Version: 3}
	swap := market.Item{ID: uuid.New(), OwnerID: buyer, Title: "rug", TotalQuantity: 1, AvailableQuantity: 0, Version: 1}
	listing := auctionListing(creator, item.ID, enums.ListingStatusActive, epoch.Add(24*time.Hour))

	amount := market.Money{Amount: decimal.RequireFromString("12.50"), Currency: enums.CurrencyUSD}
	offer := market.Offer{
		ID:             uuid.New(),
		ListingID:      listing.ID,
		OfferingUserID: buyer,
		Status:         enums.OfferStatusPending,
		Amount:         &amount,
		TradeItems:     []market.LineItem{{ItemID: swap.ID, Quantity: 1}},
		Reservations:   []market.Token{{ID: uuid.New(), ItemID: swap.ID, Quantity: 1}},
		Message:        "plus my rug",
		CreatedAt:      epoch,
		UpdatedAt:      epoch,
	}
	noon := market.TimeOfDay(12 * 60)
	day := epoch.AddDate(0, 0, 1)
	pickup := market.Pickup{
		ID:             uuid.New(),
		OfferID:        offer.ID,
		ListingID:      listing.ID,
		ProposerID:     creator,
		RecipientID:    buyer,
		AvailableDates: []time.Time{market.Day(day), market.Day(day.AddDate(0, 0, 1))},
		Window:         market.TimeWindow{Start: 9 * 60, End: 17 * 60},
		Location:       "front porch",
		SelectedDate:   &day,
		SelectedTime:   &noon,
		Status:         enums.PickupStatusPending,
		CreatedAt:      epoch,
		UpdatedAt:      epoch,
	}

	err := repo.Commit(ctx, listings.ChangeSet{
		Items:    []market.Item{item, swap},
		Listings: []market.Listing{listing},
		Offers:   []market.Offer{offer},
		Pickups:  []market.Pickup{pickup},
		Events: []outbox.DomainEvent{{
			EventType:     enums.EventOfferCreated,
			AggregateType: enums.AggregateOffer,
			AggregateID:   offer.ID,
			Data:          map[string]any{"offerId": offer.ID},
			OccurredAt:    epoch,
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), countEvents(t, conn))

	gotItem, err := repo.FindItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item, gotItem)

	gotListing, err := repo.FindListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ListingTypeAuction, gotListing.Type)
	assert.Equal(t, listing.Items, gotListing.Items)
	require.NotNil(t, gotListing.Auction)
	assert.True(t, gotListing.Auction.ReservePrice.Equal(decimal.NewFromInt(40)))
	assert.True(t, gotListing.Auction.EndTime.Equal(listing.Auction.EndTime))
	assert.Nil(t, gotListing.Sell)

	gotOffer, err := repo.FindOffer(ctx, offer.ID)
	require.NoError(t, err)
	require.NotNil(t, gotOffer.Amount)
	assert.True(t, gotOffer.Amount.Amount.Equal(amount.Amount))
	assert.Equal(t, enums.CurrencyUSD, gotOffer.Amount.Currency)
	assert.Empty(t, gotOffer.Items)
	assert.Equal(t, offer.TradeItems, gotOffer.TradeItems)
	assert.Equal(t, offer.Reservations, gotOffer.Reservations)
	assert.Equal(t, "plus my rug", gotOffer.Message)

	gotPickup, err := repo.FindPickup(ctx, pickup.ID)
	require.NoError(t, err)
	assert.Equal(t, pickup.Window, gotPickup.Window)
	require.Len(t, gotPickup.AvailableDates, 2)
	assert.True(t, gotPickup.AvailableDates[0].Equal(market.Day(day)))
	require.NotNil(t, gotPickup.SelectedTime)
	assert.Equal(t, noon, *gotPickup.SelectedTime)
	assert.Equal(t, "front porch", gotPickup.Location)
}

func TestFindMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	_, err := repo.FindItem(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)
	_, err = repo.FindListing(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)
	_, err = repo.FindOffer(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)
	_, err = repo.FindPickup(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)

	p, err := repo.FindPickupByOffer(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestStockMovesStayWithinBounds(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)
	item := market.Item{ID: uuid.New(), OwnerID: uuid.New(), Title: "chair", TotalQuantity: 5, AvailableQuantity: 2, Version: 4}
	other := market.Item{ID: uuid.New(), OwnerID: uuid.New(), Title: "desk", TotalQuantity: 1, AvailableQuantity: 1}
	require.NoError(t, repo.Commit(ctx, listings.ChangeSet{Items: []market.Item{item, other}}))

	err := repo.Commit(ctx, listings.ChangeSet{Stock: []listings.StockMove{
		{ItemID: other.ID, Available: -1},
		{ItemID: item.ID, Available: -3},
	}})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock), "got %v", err)
	got, err := repo.FindItem(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AvailableQuantity, "the whole change set rolls back")

	require.NoError(t, repo.Commit(ctx, listings.ChangeSet{Stock: []listings.StockMove{
		{ItemID: item.ID, Available: -2},
		{ItemID: item.ID, Total: -2},
	}}))
	got, err = repo.FindItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableQuantity)
	assert.Equal(t, 3, got.TotalQuantity)
	assert.Equal(t, int64(5), got.Version)

	err = repo.Commit(ctx, listings.ChangeSet{Stock: []listings.StockMove{{ItemID: item.ID, Available: 4}}})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock), "available may not pass total, got %v", err)

	stale := item
	stale.AvailableQuantity = 5
	require.NoError(t, repo.Commit(ctx, listings.ChangeSet{Items: []market.Item{stale}}))
	got, err = repo.FindItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableQuantity, "registering again never overwrites quantities")
}

func TestStaleRowWritesAreRejected(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)
	listing := auctionListing(uuid.New(), uuid.New(), enums.ListingStatusPending, epoch.Add(time.Hour))
	require.NoError(t, repo.Commit(ctx, listings.ChangeSet{Listings: []market.Listing{listing}}))

	read, err := repo.FindListing(ctx, listing.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), read.Version)

	activated := read.Clone()
	activated.Status = enums.ListingStatusActive
	require.NoError(t, repo.Commit(ctx, listings.ChangeSet{Listings: []market.Listing{activated}}))

	cancelled := read.Clone()
	cancelled.Status = enums.ListingStatusCancelled
	err = repo.Commit(ctx, listings.ChangeSet{Listings: []market.Listing{cancelled}})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeReservationConflict), "got %v", err)

	err = repo.Commit(ctx, listings.ChangeSet{Listings: []market.Listing{listing}})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeReservationConflict), "second insert, got %v", err)

	got, err := repo.FindListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ListingStatusActive, got.Status)
	assert.Equal(t, int64(2), got.Version)
	assert.Len(t, got.Items, 1)
}

func TestDuplicateBidSequenceRollsBackChangeSet(t *testing.T) {
	ctx := context.Background()
	repo, conn := newRepo(t)
	creator := uuid.New()
	listing := auctionListing(creator, uuid.New(), enums.ListingStatusActive, epoch.Add(time.Hour))

	first := auction.Bid{
		ID: uuid.New(), ListingID: listing.ID, BidderID: uuid.New(),
		Amount: decimal.NewFromInt(10), Currency: enums.CurrencyUSD, Sequence: 1, PlacedAt: epoch,
	}
	require.NoError(t, repo.Commit(ctx, listings.ChangeSet{
		Listings: []market.Listing{listing},
		Bids:     []auction.Bid{first},
	}))

	renamed, err := repo.FindListing(ctx, listing.ID)
	require.NoError(t, err)
	renamed.Title = "changed"
	dup := first
	dup.ID = uuid.New()
	err = repo.Commit(ctx, listings.ChangeSet{
		Listings: []market.Listing{renamed},
		Bids:     []auction.Bid{dup},
		Events: []outbox.DomainEvent{{
			EventType:     enums.EventBidPlaced,
			AggregateType: enums.AggregateListing,
			AggregateID:   listing.ID,
			OccurredAt:    epoch,
		}},
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)

	got, err := repo.FindListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, "lamp", got.Title)
	assert.Equal(t, int64(0), countEvents(t, conn))

	bids, err := repo.Bids(ctx, listing.ID)
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, first.ID, bids[0].ID)
}

func TestSweepQueries(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)
	creator := uuid.New()

	ended := auctionListing(creator, uuid.New(), enums.ListingStatusActive, epoch.Add(-time.Minute))
	running := auctionListing(creator, uuid.New(), enums.ListingStatusActive, epoch.Add(time.Hour))
	closed := auctionListing(creator, uuid.New(), enums.ListingStatusCancelled, epoch.Add(-time.Hour))

	offer := func(listingID uuid.UUID, status enums.OfferStatus, created time.Time) market.Offer {
		return market.Offer{
			ID: uuid.New(), ListingID: listingID, OfferingUserID: uuid.New(),
			Status: status, CreatedAt: created, UpdatedAt: created,
		}
	}
	old := offer(running.ID, enums.OfferStatusPending, epoch.Add(-72*time.Hour))
	fresh := offer(running.ID, enums.OfferStatusPending, epoch.Add(-time.Hour))
	oldAccepted := offer(running.ID, enums.OfferStatusAccepted, epoch.Add(-72*time.Hour))
	orphan := offer(closed.ID, enums.OfferStatusPending, epoch.Add(-time.Hour))

	require.NoError(t, repo.Commit(ctx, listings.ChangeSet{
		Listings: []market.Listing{ended, running, closed},
		Offers:   []market.Offer{old, fresh, oldAccepted, orphan},
	}))

	stale, err := repo.ListPendingOffersBefore(ctx, epoch.Add(-48*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, old.ID, stale[0].ID)

	orphaned, err := repo.ListPendingOffersOnClosedListings(ctx, 10)
	require.NoError(t, err)
	require.Len(t, orphaned, 1)
	assert.Equal(t, orphan.ID, orphaned[0].ID)

	ids, err := repo.ListEndedAuctions(ctx, epoch, 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{ended.ID}, ids)

	all, err := repo.ListOffersByListing(ctx, running.ID)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestFindPickupByOfferPrefersActive(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)
	offerID := uuid.New()
	base := market.Pickup{
		OfferID:        offerID,
		ListingID:      uuid.New(),
		ProposerID:     uuid.New(),
		RecipientID:    uuid.New(),
		AvailableDates: []time.Time{market.Day(epoch)},
		Window:         market.TimeWindow{Start: 9 * 60, End: 17 * 60},
	}
	active := base
	active.ID = uuid.New()
	active.Status = enums.PickupStatusPending
	active.CreatedAt = epoch
	declined := base
	declined.ID = uuid.New()
	declined.Status = enums.PickupStatusDeclined
	declined.CreatedAt = epoch.Add(time.Hour)

	require.NoError(t, repo.Commit(ctx, listings.ChangeSet{Pickups: []market.Pickup{active, declined}}))

	got, err := repo.FindPickupByOffer(ctx, offerID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, active.ID, got.ID)
}

func newCoordinator(t *testing.T, repo listings.Repository) *listings.Coordinator {
	t.Helper()
	st := stock.New(stock.Options{})
	machine, err := offers.NewMachine(st, nil)
	require.NoError(t, err)
	now := func() time.Time { return epoch }
	coord, err := listings.NewCoordinator(listings.Options{
		Repository: repo,
		Inventory:  st,
		Offers:     machine.WithClock(now),
		Pickups:    pickups.NewCoordinator().WithClock(now),
		Clock:      now,
	})
	require.NoError(t, err)
	return coord
}

func TestCoordinatorStateSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	repo, conn := newRepo(t)
	coord := newCoordinator(t, repo)
	seller, buyer := uuid.New(), uuid.New()

	item, err := coord.RegisterItem(ctx, market.Item{OwnerID: seller, Title: "bike", TotalQuantity: 2, AvailableQuantity: 2})
	require.NoError(t, err)
	created, err := coord.CreateListing(ctx, market.Listing{
		CreatorID: seller,
		Type:      enums.ListingTypeSell,
		Title:     "bikes",
		Items:     []market.LineItem{{ItemID: item.ID, Quantity: 2}},
		Sell:      &market.SellTerms{Price: market.Money{Amount: decimal.NewFromInt(80), Currency: enums.CurrencyUSD}},
	})
	require.NoError(t, err)
	_, err = coord.ActivateListing(ctx, created.Listing.ID, seller)
	require.NoError(t, err)

	first, err := coord.CreateOffer(ctx, created.Listing.ID, offers.CreateInput{
		OfferingUserID: buyer,
		Items:          []market.LineItem{{ItemID: item.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	_, err = coord.AcceptOffer(ctx, first.Offer.ID, seller, nil)
	require.NoError(t, err)
	second, err := coord.CreateOffer(ctx, created.Listing.ID, offers.CreateInput{
		OfferingUserID: uuid.New(),
		Items:          []market.LineItem{{ItemID: item.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	restarted := newCoordinator(t, repo)
	got, err := restarted.Item(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalQuantity)
	assert.Equal(t, 0, got.AvailableQuantity)

	_, err = restarted.CreateOffer(ctx, created.Listing.ID, offers.CreateInput{
		OfferingUserID: uuid.New(),
		Items:          []market.LineItem{{ItemID: item.ID, Quantity: 1}},
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock), "got %v", err)

	_, err = restarted.WithdrawOffer(ctx, second.Offer.ID, second.Offer.OfferingUserID)
	require.NoError(t, err)
	got, err = restarted.Item(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AvailableQuantity)

	pickup, err := repo.FindPickupByOffer(ctx, first.Offer.ID)
	require.NoError(t, err)
	require.NotNil(t, pickup)
	assert.Equal(t, enums.PickupStatusPending, pickup.Status)
	assert.Positive(t, countEvents(t, conn))
}
