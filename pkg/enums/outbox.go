package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateBooking             OutboxAggregateType = "booking"
	AggregateGroupBooking        OutboxAggregateType = "group_booking"
	AggregateGiftCardReservation OutboxAggregateType = "gift_card_reservation"
	AggregateNotification        OutboxAggregateType = "notification"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateBooking,
	AggregateGroupBooking,
	AggregateGiftCardReservation,
	AggregateNotification,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
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

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventBookingCreated              OutboxEventType = "booking_created"
	EventBookingPaid                 OutboxEventType = "booking_paid"
	EventBookingPaymentPending       OutboxEventType = "booking_payment_pending"
	EventBookingPaymentFailed        OutboxEventType = "booking_payment_failed"
	EventBookingConflictOverridden   OutboxEventType = "booking_conflict_overridden"
	EventBookingPostCreationFailed   OutboxEventType = "booking_post_creation_failed"
	EventGroupBookingCreated         OutboxEventType = "group_booking_created"
	EventNotificationRequested       OutboxEventType = "notification_requested"
	EventGiftCardReservationReleased OutboxEventType = "gift_card_reservation_released"
)

var validOutboxEventTypes = []OutboxEventType{
	EventBookingCreated,
	EventBookingPaid,
	EventBookingPaymentPending,
	EventBookingPaymentFailed,
	EventBookingConflictOverridden,
	EventBookingPostCreationFailed,
	EventGroupBookingCreated,
	EventNotificationRequested,
	EventGiftCardReservationReleased,
}

// IsValid reports whether the value matches the canonical event_type enum.
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
