package listings

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tradepost/internal/auction"
	"github.com/angelmondragon/tradepost/internal/market"
	"github.com/angelmondragon/tradepost/pkg/enums"
	"github.com/angelmondragon/tradepost/pkg/outbox"
	"github.com/angelmondragon/tradepost/pkg/outbox/payloads"
)

func actor(userID uuid.UUID, role string) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: userID, Role: role}
}

func systemActor() *outbox.ActorRef {
	return &outbox.ActorRef{Role: outbox.RoleSystem}
}

func roleFor(listing market.Listing, userID uuid.UUID) string {
	if userID == listing.CreatorID {
		return outbox.RoleCreator
	}
	return outbox.RoleOfferer
}

func lineItemPayloads(items []market.LineItem) []payloads.LineItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]payloads.LineItem, 0, len(items))
	for _, li := range items {
		out = append(out, payloads.LineItem{ItemID: li.ItemID, Quantity: li.Quantity})
	}
	return out
}

func offerEvent(eventType enums.OutboxEventType, offer market.Offer, by *outbox.ActorRef, at time.Time) outbox.DomainEvent {
	data := payloads.OfferEvent{
		OfferID:        offer.ID,
		ListingID:      offer.ListingID,
		OfferingUserID: offer.OfferingUserID,
		Status:         offer.Status,
		Items:          lineItemPayloads(offer.Items),
		TradeItems:     lineItemPayloads(offer.TradeItems),
	}
	if offer.Amount != nil {
		amount := offer.Amount.Amount
		data.Amount = &amount
		data.Currency = offer.Amount.Currency
	}
	return outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOffer,
		AggregateID:   offer.ID,
		Actor:         by,
		Data:          data,
		OccurredAt:    at,
	}
}

// offerEventTypes maps a status reached through a transition to its event.
var offerEventTypes = map[enums.OfferStatus]enums.OutboxEventType{
	enums.OfferStatusPending:   enums.EventOfferCreated,
	enums.OfferStatusAccepted:  enums.EventOfferAccepted,
	enums.OfferStatusRejected:  enums.EventOfferRejected,
	enums.OfferStatusWithdrawn: enums.EventOfferWithdrawn,
	enums.OfferStatusExpired:   enums.EventOfferExpired,
	enums.OfferStatusCompleted: enums.EventOfferCompleted,
	enums.OfferStatusCancelled: enums.EventOfferCancelled,
}

func offerTransitionEvent(offer market.Offer, by *outbox.ActorRef, at time.Time) outbox.DomainEvent {
	return offerEvent(offerEventTypes[offer.Status], offer, by, at)
}

func listingEvent(eventType enums.OutboxEventType, listing market.Listing, by *outbox.ActorRef, at time.Time) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateListing,
		AggregateID:   listing.ID,
		Actor:         by,
		Data: payloads.ListingEvent{
			ListingID: listing.ID,
			CreatorID: listing.CreatorID,
			Type:      listing.Type,
			Status:    listing.Status,
		},
		OccurredAt: at,
	}
}

func bidPlacedEvent(bid auction.Bid) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     enums.EventBidPlaced,
		AggregateType: enums.AggregateListing,
		AggregateID:   bid.ListingID,
		Actor:         actor(bid.BidderID, outbox.RoleBidder),
		Data: payloads.BidPlacedEvent{
			ListingID: bid.ListingID,
			BidID:     bid.ID,
			BidderID:  bid.BidderID,
			Amount:    bid.Amount,
			Currency:  bid.Currency,
			Sequence:  bid.Sequence,
			PlacedAt:  bid.PlacedAt,
		},
		OccurredAt: bid.PlacedAt,
	}
}

func auctionEndedEvent(listing market.Listing, winner *market.Offer, at time.Time) outbox.DomainEvent {
	terms := listing.Auction
	data := payloads.AuctionEndedEvent{
		ListingID:  listing.ID,
		Status:     listing.Status,
		ReserveMet: auction.IsReserveMet(*terms),
		BidCount:   terms.BidCount,
	}
	if winner != nil {
		winnerID := winner.OfferingUserID
		offerID := winner.ID
		var bid decimal.Decimal
		if winner.Amount != nil {
			bid = winner.Amount.Amount
		}
		data.WinnerID = &winnerID
		data.WinningOffer = &offerID
		data.WinningBid = &bid
	}
	return outbox.DomainEvent{
		EventType:     enums.EventAuctionEnded,
		AggregateType: enums.AggregateListing,
		AggregateID:   listing.ID,
		Actor:         systemActor(),
		Data:          data,
		OccurredAt:    at,
	}
}

var pickupEventTypes = map[enums.PickupStatus]enums.OutboxEventType{
	enums.PickupStatusPending:   enums.EventPickupProposed,
	enums.PickupStatusAccepted:  enums.EventPickupConfirmed,
	enums.PickupStatusDeclined:  enums.EventPickupDeclined,
	enums.PickupStatusCompleted: enums.EventPickupCompleted,
	enums.PickupStatusCancelled: enums.EventPickupCancelled,
}

func pickupEvent(p market.Pickup, by *outbox.ActorRef, at time.Time) outbox.DomainEvent {
	data := payloads.PickupEvent{
		PickupID:     p.ID,
		OfferID:      p.OfferID,
		ListingID:    p.ListingID,
		Status:       p.Status,
		Dates:        append([]time.Time(nil), p.AvailableDates...),
		SelectedDate: p.SelectedDate,
		Location:     p.Location,
	}
	if p.SelectedTime != nil {
		data.SelectedTime = p.SelectedTime.String()
	}
	return outbox.DomainEvent{
		EventType:     pickupEventTypes[p.Status],
		AggregateType: enums.AggregatePickup,
		AggregateID:   p.ID,
		Actor:         by,
		Data:          data,
		OccurredAt:    at,
	}
}
