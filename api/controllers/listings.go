package controllers

import (
	"net/http"
	"time"

	"github.com/angelmondragon/tradepost/api/responses"
	"github.com/angelmondragon/tradepost/api/validators"
	"github.com/angelmondragon/tradepost/pkg/enums"
	"github.com/angelmondragon/tradepost/pkg/logger"
)

// ListingCreate stores a draft listing for the caller. Prices without a
// currency fall back to defaultCurrency.
func ListingCreate(svc Marketplace, logg *logger.Logger, defaultCurrency enums.Currency) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireService(w, r, logg, svc) {
			return
		}
		creatorID, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}

		var payload createListingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listing, err := payload.toListing(creatorID, defaultCurrency, time.Now().UTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateListing(r.Context(), listing)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, viewOf(result))
	}
}

func ListingGet(svc Marketplace, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireService(w, r, logg, svc) {
			return
		}
		listingID, err := validators.ParseUUIDParam(r, "listingID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listing, err := svc.Listing(r.Context(), listingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, listing)
	}
}

func ListingActivate(svc Marketplace, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, "listingID", Marketplace.ActivateListing)
}

func ListingCancel(svc Marketplace, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, "listingID", Marketplace.CancelListing)
}

// ListingOffers lists the offers on a listing the caller may see: all of
// them for the creator, only their own for anyone else.
func ListingOffers(svc Marketplace, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireService(w, r, logg, svc) {
			return
		}
		viewerID, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		listingID, err := validators.ParseUUIDParam(r, "listingID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.Offers(r.Context(), listingID, viewerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"offers": list})
	}
}
