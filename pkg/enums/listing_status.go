package enums

import "fmt"

// ListingStatus tracks the lifecycle of a listing.
type ListingStatus string

const (
	ListingStatusPending   ListingStatus = "pending"
	ListingStatusActive    ListingStatus = "active"
	ListingStatusCompleted ListingStatus = "completed"
	ListingStatusCancelled ListingStatus = "cancelled"
	ListingStatusExpired   ListingStatus = "expired"
)

var validListingStatuses = []ListingStatus{
	ListingStatusPending,
	ListingStatusActive,
	ListingStatusCompleted,
	ListingStatusCancelled,
	ListingStatusExpired,
}

// String implements fmt.Stringer.
func (s ListingStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ListingStatus.
func (s ListingStatus) IsValid() bool {
	for _, candidate := range validListingStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsClosed reports whether the listing no longer accepts offers or bids.
func (s ListingStatus) IsClosed() bool {
	switch s {
	case ListingStatusCompleted, ListingStatusCancelled, ListingStatusExpired:
		return true
	default:
		return false
	}
}

// ParseListingStatus converts raw input into a ListingStatus.
func ParseListingStatus(value string) (ListingStatus, error) {
	for _, candidate := range validListingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid listing status %q", value)
}
