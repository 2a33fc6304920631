package enums

import "fmt"

// GiftCardReservationStatus is the saga state of a gift card hold against a booking.
type GiftCardReservationStatus string

const (
	GiftCardReservationStatusReserved GiftCardReservationStatus = "reserved"
	GiftCardReservationStatusCaptured GiftCardReservationStatus = "captured"
	GiftCardReservationStatusReleased GiftCardReservationStatus = "released"
)

var validGiftCardReservationStatuses = []GiftCardReservationStatus{
	GiftCardReservationStatusReserved,
	GiftCardReservationStatusCaptured,
	GiftCardReservationStatusReleased,
}

// String implements fmt.Stringer.
func (g GiftCardReservationStatus) String() string {
	return string(g)
}

// IsValid reports whether the value is a known GiftCardReservationStatus.
func (g GiftCardReservationStatus) IsValid() bool {
	for _, candidate := range validGiftCardReservationStatuses {
		if candidate == g {
			return true
		}
	}
	return false
}

// ParseGiftCardReservationStatus converts raw input into a GiftCardReservationStatus.
func ParseGiftCardReservationStatus(value string) (GiftCardReservationStatus, error) {
	for _, candidate := range validGiftCardReservationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid gift card reservation status %q", value)
}
