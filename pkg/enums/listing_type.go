package enums

import "fmt"

// ListingType discriminates the listing variant.
type ListingType string

const (
	ListingTypeSell    ListingType = "sell"
	ListingTypeTrade   ListingType = "trade"
	ListingTypeGift    ListingType = "gift"
	ListingTypeAuction ListingType = "auction"
)

var validListingTypes = []ListingType{
	ListingTypeSell,
	ListingTypeTrade,
	ListingTypeGift,
	ListingTypeAuction,
}

// String implements fmt.Stringer.
func (l ListingType) String() string {
	return string(l)
}

// IsValid reports whether the value is a known ListingType.
func (l ListingType) IsValid() bool {
	for _, candidate := range validListingTypes {
		if candidate == l {
			return true
		}
	}
	return false
}

// ParseListingType converts raw input into a ListingType.
func ParseListingType(value string) (ListingType, error) {
	for _, candidate := range validListingTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid listing type %q", value)
}
