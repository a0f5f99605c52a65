package enums

import "fmt"

// PickupStatus tracks the hand-off arrangement for an accepted offer.
type PickupStatus string

const (
	PickupStatusPending   PickupStatus = "pending"
	PickupStatusAccepted  PickupStatus = "accepted"
	PickupStatusDeclined  PickupStatus = "declined"
	PickupStatusCompleted PickupStatus = "completed"
	PickupStatusCancelled PickupStatus = "cancelled"
)

var validPickupStatuses = []PickupStatus{
	PickupStatusPending,
	PickupStatusAccepted,
	PickupStatusDeclined,
	PickupStatusCompleted,
	PickupStatusCancelled,
}

// String implements fmt.Stringer.
func (s PickupStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PickupStatus.
func (s PickupStatus) IsValid() bool {
	for _, candidate := range validPickupStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsActive reports whether the pickup still blocks a new proposal.
func (s PickupStatus) IsActive() bool {
	return s == PickupStatusPending || s == PickupStatusAccepted
}

// ParsePickupStatus converts raw input into a PickupStatus.
func ParsePickupStatus(value string) (PickupStatus, error) {
	for _, candidate := range validPickupStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid pickup status %q", value)
}
