package controllers

import (
	"net/http"

	"github.com/angelmondragon/tradepost/api/responses"
	"github.com/angelmondragon/tradepost/api/validators"
	"github.com/angelmondragon/tradepost/pkg/logger"
)

// BidPlace records a bid from the caller on an auction listing. The amount
// is in the auction's currency.
func BidPlace(svc Marketplace, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireService(w, r, logg, svc) {
			return
		}
		bidderID, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		listingID, err := validators.ParseUUIDParam(r, "listingID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload placeBidRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.PlaceBid(r.Context(), listingID, bidderID, payload.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, viewOf(result))
	}
}
