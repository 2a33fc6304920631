package validation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/glowbook/glowbook-backend/pkg/enums"
)

// BookingDraft is the client-supplied booking intent.
type BookingDraft struct {
	ProviderID       uuid.UUID          `json:"provider_id" validate:"required"`
	Services         []ServiceRequest   `json:"services" validate:"required,min=1,dive"`
	ScheduledStartAt time.Time          `json:"scheduled_start_at" validate:"required"`
	LocationType     enums.LocationType `json:"location_type" validate:"required"`
	LocationID       *uuid.UUID         `json:"location_id,omitempty"`
	Address          *Address           `json:"address,omitempty"`

	Addons    []AddonRequest    `json:"addons,omitempty" validate:"omitempty,dive"`
	Products  []ProductRequest  `json:"products,omitempty" validate:"omitempty,dive"`
	Resources []ResourceRequest `json:"resources,omitempty" validate:"omitempty,dive"`

	PackageID     *uuid.UUID       `json:"package_id,omitempty"`
	PromoCode     *string          `json:"promo_code,omitempty" validate:"omitempty,max=64"`
	LoyaltyPoints int64            `json:"loyalty_points,omitempty" validate:"gte=0"`
	MembershipID  *uuid.UUID       `json:"membership_id,omitempty"`
	GiftCardCode  *string          `json:"gift_card_code,omitempty" validate:"omitempty,max=64"`
	Tip           *decimal.Decimal `json:"tip,omitempty"`

	PaymentMethod        enums.PaymentMethod `json:"payment_method" validate:"required"`
	PaymentOption        enums.PaymentOption `json:"payment_option,omitempty"`
	UseWallet            bool                `json:"use_wallet,omitempty"`
	SavedPaymentMethodID *uuid.UUID          `json:"saved_payment_method_id,omitempty"`

	IsGroupBooking bool                 `json:"is_group_booking,omitempty"`
	Participants   []ParticipantRequest `json:"participants,omitempty" validate:"omitempty,dive"`

	ConflictOverride bool    `json:"conflict_override,omitempty"`
	Notes            *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// ServiceRequest asks for one offering performed by one staff member.
type ServiceRequest struct {
	OfferingID uuid.UUID `json:"offering_id" validate:"required"`
	StaffID    uuid.UUID `json:"staff_id" validate:"required"`
}

// Address is the customer's address for at-home appointments.
type Address struct {
	Line1      string  `json:"line1" validate:"required,max=200"`
	Line2      *string `json:"line2,omitempty" validate:"omitempty,max=200"`
	City       string  `json:"city" validate:"required,max=100"`
	Region     string  `json:"region" validate:"required,max=100"`
	PostalCode string  `json:"postal_code" validate:"required,max=20"`
	Country    string  `json:"country" validate:"required,len=2"`
}

// AddonRequest selects an add-on.
type AddonRequest struct {
	AddonID  uuid.UUID `json:"addon_id" validate:"required"`
	Quantity int       `json:"quantity" validate:"min=1,max=20"`
}

// ProductRequest selects a retail product.
type ProductRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"min=1,max=100"`
}

// ResourceRequest pins a resource to the service at ServiceIndex.
type ResourceRequest struct {
	ServiceIndex int       `json:"service_index" validate:"gte=0"`
	ResourceID   uuid.UUID `json:"resource_id" validate:"required"`
}

// ParticipantRequest is one guest of a group booking. Guests receive the
// same services as the organizer.
type ParticipantRequest struct {
	Name   string     `json:"name" validate:"required,max=120"`
	Email  *string    `json:"email,omitempty" validate:"omitempty,email"`
	Phone  *string    `json:"phone,omitempty" validate:"omitempty,max=32"`
	UserID *uuid.UUID `json:"user_id,omitempty"`
}
