package controllers

import (
	"net/http"

	"github.com/angelmondragon/tradepost/api/responses"
	"github.com/angelmondragon/tradepost/api/validators"
	"github.com/angelmondragon/tradepost/internal/market"
	"github.com/angelmondragon/tradepost/pkg/logger"
)

// ItemCreate registers an inventory item owned by the caller with all
// units available.
func ItemCreate(svc Marketplace, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireService(w, r, logg, svc) {
			return
		}
		ownerID, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}

		var payload createItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.RegisterItem(r.Context(), market.Item{
			OwnerID:           ownerID,
			Title:             validators.SanitizeString(payload.Title, maxTitleLen),
			TotalQuantity:     payload.Quantity,
			AvailableQuantity: payload.Quantity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, item)
	}
}

func ItemGet(svc Marketplace, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireService(w, r, logg, svc) {
			return
		}
		itemID, err := validators.ParseUUIDParam(r, "itemID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := svc.Item(r.Context(), itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}
