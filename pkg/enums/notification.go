package enums

import "fmt"

// NotificationType names the alert a notification_requested event asks for.
type NotificationType string

const (
	NotificationTypeBookingConfirmed NotificationType = "booking_confirmed"
	NotificationTypeBookingRequested NotificationType = "booking_requested"
	NotificationTypeNewBooking       NotificationType = "new_booking"
	NotificationTypePaymentPending   NotificationType = "payment_pending"
	NotificationTypePaymentFailed    NotificationType = "payment_failed"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeBookingConfirmed,
	NotificationTypeBookingRequested,
	NotificationTypeNewBooking,
	NotificationTypePaymentPending,
	NotificationTypePaymentFailed,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
