package enums

import "fmt"

// LocationType says where the appointment takes place.
type LocationType string

const (
	LocationTypeCustomerAddress  LocationType = "customer_address"
	LocationTypeBusinessLocation LocationType = "business_location"
)

var validLocationTypes = []LocationType{
	LocationTypeCustomerAddress,
	LocationTypeBusinessLocation,
}

// String implements fmt.Stringer.
func (l LocationType) String() string {
	return string(l)
}

// IsValid reports whether the value is a known LocationType.
func (l LocationType) IsValid() bool {
	for _, candidate := range validLocationTypes {
		if candidate == l {
			return true
		}
	}
	return false
}

// ParseLocationType converts raw input into a LocationType.
func ParseLocationType(value string) (LocationType, error) {
	for _, candidate := range validLocationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid location type %q", value)
}
