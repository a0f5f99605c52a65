package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/tradepost/api/responses"
	"github.com/angelmondragon/tradepost/api/validators"
	"github.com/angelmondragon/tradepost/internal/market"
	pkgerrors "github.com/angelmondragon/tradepost/pkg/errors"
	"github.com/angelmondragon/tradepost/pkg/logger"
)

// PickupPropose opens a pickup for an accepted offer with the caller as
// proposer.
func PickupPropose(svc Marketplace, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireService(w, r, logg, svc) {
			return
		}
		actorID, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		offerID, err := validators.ParseUUIDParam(r, "offerID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload proposalRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		proposal, err := payload.toProposal()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ProposePickup(r.Context(), offerID, actorID, proposal)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, viewOf(result))
	}
}

func PickupGet(svc Marketplace, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireService(w, r, logg, svc) {
			return
		}
		viewerID, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		pickupID, err := validators.ParseUUIDParam(r, "pickupID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		pickup, err := svc.Pickup(r.Context(), pickupID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !pickup.IsParticipant(viewerID) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "pickup not found"))
			return
		}
		responses.WriteSuccess(w, pickup)
	}
}

// PickupSelectTime picks one of the proposed dates and a time inside the
// proposed window.
func PickupSelectTime(svc Marketplace, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireService(w, r, logg, svc) {
			return
		}
		actorID, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		pickupID, err := validators.ParseUUIDParam(r, "pickupID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload selectTimeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		date, err := validators.ParseDate("date", payload.Date)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		at, err := market.ParseTimeOfDay(strings.TrimSpace(payload.Time))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.SelectPickupTime(r.Context(), pickupID, actorID, date, at)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, viewOf(result))
	}
}

func PickupAccept(svc Marketplace, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, "pickupID", Marketplace.AcceptPickup)
}

func PickupDecline(svc Marketplace, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, "pickupID", Marketplace.DeclinePickup)
}

func PickupComplete(svc Marketplace, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, "pickupID", Marketplace.CompletePickup)
}

func PickupCancel(svc Marketplace, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, "pickupID", Marketplace.CancelPickup)
}
