package validation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/glowbook/glowbook-backend/internal/pricing"
	"github.com/glowbook/glowbook-backend/pkg/db/models"
	"github.com/glowbook/glowbook-backend/pkg/enums"
)

// Window is a staff member's occupied interval, end exclusive.
type Window struct {
	StaffID uuid.UUID
	StartAt time.Time
	EndAt   time.Time
}

// PlannedService is one service occurrence with its resolved price and timing.
type PlannedService struct {
	OfferingID      uuid.UUID
	StaffID         uuid.UUID
	ParticipantName *string
	Price           decimal.Decimal
	DurationMinutes int
	StartAt         time.Time
	EndAt           time.Time
}

// Window returns the staff interval the service occupies.
func (s PlannedService) Window() Window {
	return Window{StaffID: s.StaffID, StartAt: s.StartAt, EndAt: s.EndAt}
}

// AddonLine is a priced add-on selection.
type AddonLine struct {
	AddonID   uuid.UUID
	Quantity  int
	UnitPrice decimal.Decimal
}

// ProductLine is a priced retail selection.
type ProductLine struct {
	ProductID uuid.UUID
	Quantity  int
	UnitPrice decimal.Decimal
}

// GroupPlan holds the guests of a group booking and the rows planned for them.
type GroupPlan struct {
	Participants []ParticipantRequest
	Services     []PlannedService
}

// ConflictResult reports overlapping bookings found while validating.
type ConflictResult struct {
	ConflictingBookingIDs []uuid.UUID
	OverrideRequested     bool
	OverridePermitted     bool
}

// HasConflict reports whether any overlapping booking was found.
func (c ConflictResult) HasConflict() bool {
	return len(c.ConflictingBookingIDs) > 0
}

// ValidatedBookingData is the immutable result of validating a draft. Its
// breakdown is the single source of truth for what must be collected.
type ValidatedBookingData struct {
	CustomerID    uuid.UUID
	CustomerEmail string

	Provider     models.Provider
	LocationType enums.LocationType
	Location     *models.ProviderLocation
	Address      *Address

	Offerings map[uuid.UUID]models.Offering
	Staff     map[uuid.UUID]models.StaffMember
	Addons    map[uuid.UUID]models.Addon
	Products  map[uuid.UUID]models.Product

	Services     []PlannedService
	AddonLines   []AddonLine
	ProductLines []ProductLine
	Resources    []ResourceRequest
	Group        *GroupPlan

	ScheduledStartAt time.Time
	ScheduledEndAt   time.Time

	Currency     string
	Breakdown    pricing.Breakdown
	Settings     pricing.PlatformSettings
	PromoCodeID  *uuid.UUID
	PackageID    *uuid.UUID
	MembershipID *uuid.UUID

	AppointmentStatus  enums.BookingStatus
	PaymentMethod      enums.PaymentMethod
	PaymentOption      enums.PaymentOption
	UseWallet          bool
	GiftCardCode       *string
	SavedPaymentMethod *models.SavedPaymentMethod

	Conflict ConflictResult
	Notes    *string
}

// Windows returns every staff interval the booking will occupy, group rows
// included.
func (v *ValidatedBookingData) Windows() []Window {
	out := make([]Window, 0, len(v.Services))
	for _, s := range v.Services {
		out = append(out, s.Window())
	}
	if v.Group != nil {
		for _, s := range v.Group.Services {
			out = append(out, s.Window())
		}
	}
	return out
}
