package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/glowbook/glowbook-backend/pkg/enums"
)

// Booking is the confirmed transactional record of an appointment. Monetary
// fields are copied from the validated pricing breakdown and never recomputed.
type Booking struct {
	ID            uuid.UUID           `gorm:"type:uuid;primaryKey"`
	BookingNumber string              `gorm:"column:booking_number;not null;uniqueIndex"`
	CustomerID    uuid.UUID           `gorm:"column:customer_id;type:uuid;not null;index"`
	ProviderID    uuid.UUID           `gorm:"column:provider_id;type:uuid;not null;index"`
	Status        enums.BookingStatus `gorm:"column:status;type:text;not null;default:'pending'"`

	LocationType enums.LocationType `gorm:"column:location_type;type:text;not null"`
	LocationID   *uuid.UUID         `gorm:"column:location_id;type:uuid"`
	AddressLine1 *string            `gorm:"column:address_line1"`
	AddressLine2 *string            `gorm:"column:address_line2"`
	City         *string            `gorm:"column:city"`
	Region       *string            `gorm:"column:region"`
	PostalCode   *string            `gorm:"column:postal_code"`
	Country      *string            `gorm:"column:country"`

	ScheduledStartAt time.Time `gorm:"column:scheduled_start_at;not null"`
	ScheduledEndAt   time.Time `gorm:"column:scheduled_end_at;not null"`

	Currency             string          `gorm:"column:currency;type:text;not null"`
	Subtotal             decimal.Decimal `gorm:"column:subtotal;type:numeric(12,2);not null"`
	PackageDiscount      decimal.Decimal `gorm:"column:package_discount;type:numeric(12,2);not null;default:0"`
	PromoDiscount        decimal.Decimal `gorm:"column:promo_discount;type:numeric(12,2);not null;default:0"`
	LoyaltyDiscount      decimal.Decimal `gorm:"column:loyalty_discount;type:numeric(12,2);not null;default:0"`
	MembershipDiscount   decimal.Decimal `gorm:"column:membership_discount;type:numeric(12,2);not null;default:0"`
	DiscountTotal        decimal.Decimal `gorm:"column:discount_total;type:numeric(12,2);not null;default:0"`
	TravelFee            decimal.Decimal `gorm:"column:travel_fee;type:numeric(12,2);not null;default:0"`
	ServiceFeeAmount     decimal.Decimal `gorm:"column:service_fee_amount;type:numeric(12,2);not null;default:0"`
	ServiceFeePercentage decimal.Decimal `gorm:"column:service_fee_percentage;type:numeric(5,2);not null;default:0"`
	TaxRate              decimal.Decimal `gorm:"column:tax_rate;type:numeric(5,4);not null;default:0"`
	TaxAmount            decimal.Decimal `gorm:"column:tax_amount;type:numeric(12,2);not null;default:0"`
	TipAmount            decimal.Decimal `gorm:"column:tip_amount;type:numeric(12,2);not null;default:0"`
	CommissionBase       decimal.Decimal `gorm:"column:commission_base;type:numeric(12,2);not null"`
	TotalAmount          decimal.Decimal `gorm:"column:total_amount;type:numeric(12,2);not null"`
	DepositAmount        decimal.Decimal `gorm:"column:deposit_amount;type:numeric(12,2);not null;default:0"`
	AmountToCollect      decimal.Decimal `gorm:"column:amount_to_collect;type:numeric(12,2);not null"`
	GiftCardAmount       decimal.Decimal `gorm:"column:gift_card_amount;type:numeric(12,2);not null;default:0"`
	WalletAmount         decimal.Decimal `gorm:"column:wallet_amount;type:numeric(12,2);not null;default:0"`
	AmountPaid           decimal.Decimal `gorm:"column:amount_paid;type:numeric(12,2);not null;default:0"`

	LoyaltyPointsRedeemed int64      `gorm:"column:loyalty_points_redeemed;not null;default:0"`
	LoyaltyPointsEarned   int64      `gorm:"column:loyalty_points_earned;not null;default:0"`
	PromoCodeID           *uuid.UUID `gorm:"column:promo_code_id;type:uuid"`
	PackageID             *uuid.UUID `gorm:"column:package_id;type:uuid"`
	MembershipID          *uuid.UUID `gorm:"column:membership_id;type:uuid"`

	PaymentOption    enums.PaymentOption    `gorm:"column:payment_option;type:text;not null;default:'full'"`
	PaymentMethod    enums.PaymentMethod    `gorm:"column:payment_method;type:text;not null"`
	PaymentStatus    enums.PaymentStatus    `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	PaymentProvider  *enums.PaymentProvider `gorm:"column:payment_provider;type:text"`
	PaymentReference *string                `gorm:"column:payment_reference"`
	PaymentDate      *time.Time             `gorm:"column:payment_date"`

	GroupBookingID   *uuid.UUID      `gorm:"column:group_booking_id;type:uuid"`
	ConflictOverride bool            `gorm:"column:conflict_override;not null;default:false"`
	Notes            *string         `gorm:"column:notes"`
	Metadata         json.RawMessage `gorm:"column:metadata;type:jsonb"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`

	Services []BookingService `gorm:"foreignKey:BookingID"`
}

func (b *Booking) BeforeCreate(*gorm.DB) error {
	assignID(&b.ID)
	return nil
}

// BookingService is one requested service occurrence within a booking.
type BookingService struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey"`
	BookingID        uuid.UUID       `gorm:"column:booking_id;type:uuid;not null;index"`
	OfferingID       uuid.UUID       `gorm:"column:offering_id;type:uuid;not null"`
	StaffID          uuid.UUID       `gorm:"column:staff_id;type:uuid;not null;index:idx_booking_services_staff_window"`
	ParticipantName  *string         `gorm:"column:participant_name"`
	Price            decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	DurationMinutes  int             `gorm:"column:duration_minutes;not null"`
	ScheduledStartAt time.Time       `gorm:"column:scheduled_start_at;not null;index:idx_booking_services_staff_window"`
	ScheduledEndAt   time.Time       `gorm:"column:scheduled_end_at;not null;index:idx_booking_services_staff_window"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (s *BookingService) BeforeCreate(*gorm.DB) error {
	assignID(&s.ID)
	return nil
}

// BookingAddon is an add-on purchased with a booking.
type BookingAddon struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey"`
	BookingID uuid.UUID       `gorm:"column:booking_id;type:uuid;not null;index"`
	AddonID   uuid.UUID       `gorm:"column:addon_id;type:uuid;not null"`
	Quantity  int             `gorm:"column:quantity;not null;default:1"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (a *BookingAddon) BeforeCreate(*gorm.DB) error {
	assignID(&a.ID)
	return nil
}

// BookingProduct is a retail product sold with a booking.
type BookingProduct struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey"`
	BookingID uuid.UUID       `gorm:"column:booking_id;type:uuid;not null;index"`
	ProductID uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	Quantity  int             `gorm:"column:quantity;not null"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (p *BookingProduct) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

// BookingResource reserves a physical resource for a service window.
type BookingResource struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	BookingID        uuid.UUID `gorm:"column:booking_id;type:uuid;not null;index"`
	BookingServiceID uuid.UUID `gorm:"column:booking_service_id;type:uuid;not null"`
	ResourceID       uuid.UUID `gorm:"column:resource_id;type:uuid;not null;index"`
	StartsAt         time.Time `gorm:"column:starts_at;not null"`
	EndsAt           time.Time `gorm:"column:ends_at;not null"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (r *BookingResource) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}

// BookingEvent is an append-only audit row for a booking.
type BookingEvent struct {
	ID          uuid.UUID              `gorm:"type:uuid;primaryKey"`
	BookingID   uuid.UUID              `gorm:"column:booking_id;type:uuid;not null;index"`
	Type        enums.BookingEventType `gorm:"column:type;type:text;not null"`
	ActorUserID uuid.UUID              `gorm:"column:actor_user_id;type:uuid;not null"`
	Metadata    json.RawMessage        `gorm:"column:metadata;type:jsonb"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime"`
}

func (e *BookingEvent) BeforeCreate(*gorm.DB) error {
	assignID(&e.ID)
	return nil
}

// BookingCounter backs booking number allocation.
type BookingCounter struct {
	Name      string `gorm:"column:name;primaryKey"`
	LastValue int64  `gorm:"column:last_value;not null;default:0"`
}

// GroupBooking aggregates the bookings made for several participants at once.
type GroupBooking struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrganizerID      uuid.UUID `gorm:"column:organizer_id;type:uuid;not null;index"`
	PrimaryBookingID uuid.UUID `gorm:"column:primary_booking_id;type:uuid;not null;uniqueIndex"`
	ProviderID       uuid.UUID `gorm:"column:provider_id;type:uuid;not null"`
	ParticipantCount int       `gorm:"column:participant_count;not null"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`

	Participants []GroupBookingParticipant `gorm:"foreignKey:GroupBookingID"`
}

func (g *GroupBooking) BeforeCreate(*gorm.DB) error {
	assignID(&g.ID)
	return nil
}

// GroupBookingParticipant is one invitee in a group booking.
type GroupBookingParticipant struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey"`
	GroupBookingID uuid.UUID  `gorm:"column:group_booking_id;type:uuid;not null;index"`
	Name           string     `gorm:"column:name;not null"`
	Email          *string    `gorm:"column:email"`
	Phone          *string    `gorm:"column:phone"`
	UserID         *uuid.UUID `gorm:"column:user_id;type:uuid"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (p *GroupBookingParticipant) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}
