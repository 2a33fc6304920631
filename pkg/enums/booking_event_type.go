package enums

import "fmt"

// BookingEventType classifies append-only booking audit rows.
type BookingEventType string

const (
	BookingEventTypeCreated             BookingEventType = "created"
	BookingEventTypeConflictOverridden  BookingEventType = "conflict_overridden"
	BookingEventTypeGroupBookingCreated BookingEventType = "group_booking_created"
	BookingEventTypePostCreationFailed  BookingEventType = "post_creation_failed"
)

var validBookingEventTypes = []BookingEventType{
	BookingEventTypeCreated,
	BookingEventTypeConflictOverridden,
	BookingEventTypeGroupBookingCreated,
	BookingEventTypePostCreationFailed,
}

// String implements fmt.Stringer.
func (b BookingEventType) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BookingEventType.
func (b BookingEventType) IsValid() bool {
	for _, candidate := range validBookingEventTypes {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBookingEventType converts raw input into a BookingEventType.
func ParseBookingEventType(value string) (BookingEventType, error) {
	for _, candidate := range validBookingEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid booking event type %q", value)
}
