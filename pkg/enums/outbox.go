package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateListing OutboxAggregateType = "listing"
	AggregateOffer   OutboxAggregateType = "offer"
	AggregatePickup  OutboxAggregateType = "pickup"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateListing,
	AggregateOffer,
	AggregatePickup,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventOfferCreated     OutboxEventType = "offer_created"
	EventOfferAccepted    OutboxEventType = "offer_accepted"
	EventOfferRejected    OutboxEventType = "offer_rejected"
	EventOfferWithdrawn   OutboxEventType = "offer_withdrawn"
	EventOfferExpired     OutboxEventType = "offer_expired"
	EventOfferCompleted   OutboxEventType = "offer_completed"
	EventOfferCancelled   OutboxEventType = "offer_cancelled"
	EventBidPlaced        OutboxEventType = "bid_placed"
	EventAuctionEnded     OutboxEventType = "auction_ended"
	EventListingActivated OutboxEventType = "listing_activated"
	EventListingCancelled OutboxEventType = "listing_cancelled"
	EventPickupProposed   OutboxEventType = "pickup_proposed"
	EventPickupConfirmed  OutboxEventType = "pickup_confirmed"
	EventPickupDeclined   OutboxEventType = "pickup_declined"
	EventPickupCompleted  OutboxEventType = "pickup_completed"
	EventPickupCancelled  OutboxEventType = "pickup_cancelled"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOfferCreated,
	EventOfferAccepted,
	EventOfferRejected,
	EventOfferWithdrawn,
	EventOfferExpired,
	EventOfferCompleted,
	EventOfferCancelled,
	EventBidPlaced,
	EventAuctionEnded,
	EventListingActivated,
	EventListingCancelled,
	EventPickupProposed,
	EventPickupConfirmed,
	EventPickupDeclined,
	EventPickupCompleted,
	EventPickupCancelled,
}

// String implements fmt.Stringer.
func (e OutboxEventType) String() string {
	return string(e)
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
