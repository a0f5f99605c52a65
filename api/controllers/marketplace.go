package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tradepost/api/middleware"
	"github.com/angelmondragon/tradepost/api/responses"
	"github.com/angelmondragon/tradepost/api/validators"
	"github.com/angelmondragon/tradepost/internal/auction"
	"github.com/angelmondragon/tradepost/internal/listings"
	"github.com/angelmondragon/tradepost/internal/market"
	"github.com/angelmondragon/tradepost/internal/offers"
	"github.com/angelmondragon/tradepost/internal/pickups"
	pkgerrors "github.com/angelmondragon/tradepost/pkg/errors"
	"github.com/angelmondragon/tradepost/pkg/logger"
)

// Marketplace is the coordinator surface the HTTP layer drives.
type Marketplace interface {
	RegisterItem(ctx context.Context, item market.Item) (market.Item, error)
	Item(ctx context.Context, id uuid.UUID) (market.Item, error)

	CreateListing(ctx context.Context, listing market.Listing) (listings.Result, error)
	ActivateListing(ctx context.Context, listingID, actorID uuid.UUID) (listings.Result, error)
	CancelListing(ctx context.Context, listingID, actorID uuid.UUID) (listings.Result, error)
	Listing(ctx context.Context, id uuid.UUID) (market.Listing, error)
	Offers(ctx context.Context, listingID, viewerID uuid.UUID) ([]market.Offer, error)

	CreateOffer(ctx context.Context, listingID uuid.UUID, input offers.CreateInput) (listings.Result, error)
	AcceptOffer(ctx context.Context, offerID, actorID uuid.UUID, proposal *pickups.Proposal) (listings.Result, error)
	RejectOffer(ctx context.Context, offerID, actorID uuid.UUID) (listings.Result, error)
	WithdrawOffer(ctx context.Context, offerID, actorID uuid.UUID) (listings.Result, error)
	CompleteOffer(ctx context.Context, offerID, actorID uuid.UUID) (listings.Result, error)
	CancelOffer(ctx context.Context, offerID, actorID uuid.UUID) (listings.Result, error)
	Offer(ctx context.Context, id uuid.UUID) (market.Offer, error)

	PlaceBid(ctx context.Context, listingID, bidderID uuid.UUID, amount decimal.Decimal) (listings.Result, error)
	CloseAuction(ctx context.Context, listingID uuid.UUID) (listings.Result, error)

	ProposePickup(ctx context.Context, offerID, actorID uuid.UUID, proposal pickups.Proposal) (listings.Result, error)
	SelectPickupTime(ctx context.Context, pickupID, actorID uuid.UUID, date time.Time, at market.TimeOfDay) (listings.Result, error)
	AcceptPickup(ctx context.Context, pickupID, actorID uuid.UUID) (listings.Result, error)
	DeclinePickup(ctx context.Context, pickupID, actorID uuid.UUID) (listings.Result, error)
	CompletePickup(ctx context.Context, pickupID, actorID uuid.UUID) (listings.Result, error)
	CancelPickup(ctx context.Context, pickupID, actorID uuid.UUID) (listings.Result, error)
	Pickup(ctx context.Context, id uuid.UUID) (market.Pickup, error)
}

var _ Marketplace = (*listings.Coordinator)(nil)

// resultView is the public shape of a coordinator result. Events stay
// internal; they reach consumers through the outbox.
type resultView struct {
	Listing *market.Listing `json:"listing,omitempty"`
	Offer   *market.Offer   `json:"offer,omitempty"`
	Pickup  *market.Pickup  `json:"pickup,omitempty"`
	Bid     *auction.Bid    `json:"bid,omitempty"`
}

func viewOf(result listings.Result) resultView {
	return resultView{
		Listing: result.Listing,
		Offer:   result.Offer,
		Pickup:  result.Pickup,
		Bid:     result.Bid,
	}
}

func requireCaller(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (uuid.UUID, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
		return uuid.Nil, false
	}
	return userID, true
}

func requireService(w http.ResponseWriter, r *http.Request, logg *logger.Logger, svc Marketplace) bool {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "marketplace unavailable"))
		return false
	}
	return true
}

type transitionCall func(svc Marketplace, ctx context.Context, id, actorID uuid.UUID) (listings.Result, error)

// transition runs a coordinator call keyed by one path id on the caller's
// behalf. call is a method expression such as Marketplace.RejectOffer.
func transition(svc Marketplace, logg *logger.Logger, param string, call transitionCall) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireService(w, r, logg, svc) {
			return
		}
		actorID, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUIDParam(r, param)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := call(svc, r.Context(), id, actorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, viewOf(result))
	}
}
