package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/glowbook/glowbook-backend/pkg/enums"
)

// BookingCreatedEvent signals a booking row was committed.
type BookingCreatedEvent struct {
	BookingID        uuid.UUID           `json:"booking_id"`
	BookingNumber    string              `json:"booking_number"`
	CustomerID       uuid.UUID           `json:"customer_id"`
	ProviderID       uuid.UUID           `json:"provider_id"`
	Status           enums.BookingStatus `json:"status"`
	ScheduledStartAt time.Time           `json:"scheduled_start_at"`
	ScheduledEndAt   time.Time           `json:"scheduled_end_at"`
	TotalAmount      decimal.Decimal     `json:"total_amount"`
	Currency         string              `json:"currency"`
	ConflictOverride bool                `json:"conflict_override"`
}

// BookingPaidEvent is emitted once the amount due has been collected.
type BookingPaidEvent struct {
	BookingID     uuid.UUID             `json:"booking_id"`
	BookingNumber string                `json:"booking_number"`
	Status        enums.BookingStatus   `json:"status"`
	PaymentStatus enums.PaymentStatus   `json:"payment_status"`
	Provider      enums.PaymentProvider `json:"provider"`
	FundingSource enums.FundingSource   `json:"funding_source"`
	Reference     string                `json:"reference"`
	AmountPaid    decimal.Decimal       `json:"amount_paid"`
	Currency      string                `json:"currency"`
	PaidAt        time.Time             `json:"paid_at"`
}

// BookingPaymentPendingEvent carries the gateway handoff for a redirect payment.
type BookingPaymentPendingEvent struct {
	BookingID        uuid.UUID             `json:"booking_id"`
	Provider         enums.PaymentProvider `json:"provider"`
	Reference        string                `json:"reference"`
	AuthorizationURL *string               `json:"authorization_url,omitempty"`
	AmountDue        decimal.Decimal       `json:"amount_due"`
	Currency         string                `json:"currency"`
}

// BookingPaymentFailedEvent is emitted when a gateway declines or the checkout expires.
type BookingPaymentFailedEvent struct {
	BookingID uuid.UUID             `json:"booking_id"`
	Provider  enums.PaymentProvider `json:"provider"`
	Reference string                `json:"reference,omitempty"`
	Reason    string                `json:"reason"`
	FailedAt  time.Time             `json:"failed_at"`
}

// BookingConflictOverriddenEvent records who let a booking overlap existing ones.
type BookingConflictOverriddenEvent struct {
	BookingID             uuid.UUID   `json:"booking_id"`
	ConflictingBookingIDs []uuid.UUID `json:"conflicting_booking_ids"`
	AuthorizedBy          uuid.UUID   `json:"authorized_by"`
}

// BookingPostCreationFailedEvent lets a worker retry a failed follow-up step.
type BookingPostCreationFailedEvent struct {
	BookingID uuid.UUID `json:"booking_id"`
	Step      string    `json:"step"`
	Error     string    `json:"error"`
}

// GroupBookingCreatedEvent is emitted once guests are attached to a booking.
type GroupBookingCreatedEvent struct {
	GroupBookingID   uuid.UUID `json:"group_booking_id"`
	PrimaryBookingID uuid.UUID `json:"primary_booking_id"`
	OrganizerID      uuid.UUID `json:"organizer_id"`
	ParticipantCount int       `json:"participant_count"`
}

// NotificationRequestedEvent tells downstream systems to alert a user.
type NotificationRequestedEvent struct {
	BookingID   uuid.UUID `json:"booking_id"`
	RecipientID uuid.UUID `json:"recipient_id"`
	Type        string    `json:"type"`
	Message     string    `json:"message,omitempty"`
}

// GiftCardReservationReleasedEvent reports a hold returned to its card.
type GiftCardReservationReleasedEvent struct {
	ReservationID uuid.UUID       `json:"reservation_id"`
	GiftCardID    uuid.UUID       `json:"gift_card_id"`
	BookingID     uuid.UUID       `json:"booking_id"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
	ReleasedAt    time.Time       `json:"released_at"`
}
