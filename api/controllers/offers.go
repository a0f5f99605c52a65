package controllers

import (
	"net/http"

	"github.com/angelmondragon/tradepost/api/responses"
	"github.com/angelmondragon/tradepost/api/validators"
	"github.com/angelmondragon/tradepost/internal/pickups"
	"github.com/angelmondragon/tradepost/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost/pkg/errors"
	"github.com/angelmondragon/tradepost/pkg/logger"
)

// OfferCreate places an offer from the caller against a listing.
func OfferCreate(svc Marketplace, logg *logger.Logger, defaultCurrency enums.Currency) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireService(w, r, logg, svc) {
			return
		}
		offererID, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		listingID, err := validators.ParseUUIDParam(r, "listingID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createOfferRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput(offererID, defaultCurrency)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateOffer(r.Context(), listingID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, viewOf(result))
	}
}

// OfferGet returns an offer to its maker or the listing creator. Anyone
// else gets a not found.
func OfferGet(svc Marketplace, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireService(w, r, logg, svc) {
			return
		}
		viewerID, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		offerID, err := validators.ParseUUIDParam(r, "offerID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		offer, err := svc.Offer(r.Context(), offerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if offer.OfferingUserID != viewerID {
			listing, err := svc.Listing(r.Context(), offer.ListingID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if listing.CreatorID != viewerID {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "offer not found"))
				return
			}
		}
		responses.WriteSuccess(w, offer)
	}
}

// OfferAccept accepts an offer as the listing creator. The body is
// optional; when it carries a pickup proposal the pickup is opened in the
// same step.
func OfferAccept(svc Marketplace, logg *logger.Logger) http.HandlerFunc {
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

		var proposal *pickups.Proposal
		if hasBody(r) {
			var payload acceptOfferRequest
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if payload.Pickup != nil {
				p, err := payload.Pickup.toProposal()
				if err != nil {
					responses.WriteError(r.Context(), logg, w, err)
					return
				}
				proposal = &p
			}
		}

		result, err := svc.AcceptOffer(r.Context(), offerID, actorID, proposal)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, viewOf(result))
	}
}

func OfferReject(svc Marketplace, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, "offerID", Marketplace.RejectOffer)
}

func OfferWithdraw(svc Marketplace, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, "offerID", Marketplace.WithdrawOffer)
}

func OfferComplete(svc Marketplace, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, "offerID", Marketplace.CompleteOffer)
}

func OfferCancel(svc Marketplace, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, "offerID", Marketplace.CancelOffer)
}
