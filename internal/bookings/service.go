package bookings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/glowbook/glowbook-backend/internal/validation"
	dbpkg "github.com/glowbook/glowbook-backend/pkg/db"
	"github.com/glowbook/glowbook-backend/pkg/db/models"
	"github.com/glowbook/glowbook-backend/pkg/enums"
	pkgerrors "github.com/glowbook/glowbook-backend/pkg/errors"
	"github.com/glowbook/glowbook-backend/pkg/logger"
	"github.com/glowbook/glowbook-backend/pkg/outbox"
	"github.com/glowbook/glowbook-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type numberAllocator interface {
	Next(ctx context.Context, tx *gorm.DB) (string, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type resourceCatalog interface {
	OfferingRequirements(ctx context.Context, offeringIDs []uuid.UUID) (map[uuid.UUID][]models.OfferingResource, error)
	ResourcesByKind(ctx context.Context, providerID uuid.UUID, kinds []string) ([]models.Resource, error)
}

// ReserveInput carries a validated draft into the reserving transaction.
type ReserveInput struct {
	Validated   *validation.ValidatedBookingData
	ActorUserID uuid.UUID
}

// Service reserves slots and runs the follow-up steps of a new booking.
type Service interface {
	Reserve(ctx context.Context, input ReserveInput) (*models.Booking, error)
	RunPostCreation(ctx context.Context, booking *models.Booking, validated *validation.ValidatedBookingData) error
	FindForCustomer(ctx context.Context, bookingID, customerID uuid.UUID) (*models.Booking, error)
}

// ServiceParams wires the bookings service.
type ServiceParams struct {
	TX      txRunner
	Repo    *Repository
	Catalog resourceCatalog
	Numbers numberAllocator
	Outbox  outboxPublisher
	Logger  *logger.Logger
}

type service struct {
	tx      txRunner
	repo    *Repository
	catalog resourceCatalog
	numbers numberAllocator
	outbox  outboxPublisher
	logg    *logger.Logger
}

// NewService validates params and builds the service.
func NewService(params ServiceParams) (Service, error) {
	if params.TX == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("bookings repository required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("resource catalog required")
	}
	if params.Numbers == nil {
		return nil, fmt.Errorf("number allocator required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:      params.TX,
		repo:    params.Repo,
		catalog: params.Catalog,
		numbers: params.Numbers,
		outbox:  params.Outbox,
		logg:    params.Logger,
	}, nil
}

// bookingMetadata is stored on bookings.metadata.
type bookingMetadata struct {
	ConflictingBookingIDs []uuid.UUID `json:"conflicting_booking_ids,omitempty"`
	OverrideAuthorizedBy  *uuid.UUID  `json:"override_authorized_by,omitempty"`
}

func (s *service) Reserve(ctx context.Context, input ReserveInput) (*models.Booking, error) {
	v := input.Validated
	if v == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "validated booking required")
	}
	if len(v.Services) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking has no services")
	}
	actor := input.ActorUserID
	if actor == uuid.Nil {
		actor = v.CustomerID
	}

	var created *models.Booking
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		conflicts, err := repo.LockConflicts(ctx, v.Windows())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeCreateError, err, "check slot availability")
		}
		overridden := false
		if len(conflicts) > 0 {
			if !v.Conflict.OverrideRequested || !v.Conflict.OverridePermitted {
				return slotConflict(conflicts)
			}
			overridden = true
		}

		number, err := s.numbers.Next(ctx, tx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeCreateError, err, "allocate booking number")
		}

		booking, err := buildBooking(v, number, overridden, conflicts, actor)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeCreateError, err, "build booking")
		}
		if err := repo.CreateBooking(ctx, booking); err != nil {
			return classifyInsertError(err, "insert booking")
		}
		// Guest rows hold their windows under the same locks as the organizer's.
		services := buildServices(booking.ID, v.Services)
		if v.Group != nil {
			services = append(services, buildServices(booking.ID, v.Group.Services)...)
		}
		if err := repo.CreateServices(ctx, services); err != nil {
			return classifyInsertError(err, "insert booking services")
		}
		booking.Services = services

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookingCreated,
			AggregateType: enums.AggregateBooking,
			AggregateID:   booking.ID,
			Actor:         &outbox.ActorRef{UserID: actor, ProviderID: &booking.ProviderID, Role: "customer"},
			Data: payloads.BookingCreatedEvent{
				BookingID:        booking.ID,
				BookingNumber:    booking.BookingNumber,
				CustomerID:       booking.CustomerID,
				ProviderID:       booking.ProviderID,
				Status:           booking.Status,
				ScheduledStartAt: booking.ScheduledStartAt,
				ScheduledEndAt:   booking.ScheduledEndAt,
				TotalAmount:      booking.TotalAmount,
				Currency:         booking.Currency,
				ConflictOverride: booking.ConflictOverride,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeCreateError, err, "queue booking_created")
		}

		created = booking
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = classifyInsertError(err, "create booking")
		}
		return nil, err
	}

	logCtx := s.logg.WithFields(s.logg.WithBookingID(ctx, created.ID.String()), map[string]any{
		"booking_number":    created.BookingNumber,
		"provider_id":       created.ProviderID.String(),
		"service_count":     len(created.Services),
		"conflict_override": created.ConflictOverride,
	})
	s.logg.Info(logCtx, "booking.reserved")
	return created, nil
}

// FindForCustomer loads a booking the customer made. Bookings of other
// customers read as not found.
func (s *service) FindForCustomer(ctx context.Context, bookingID, customerID uuid.UUID) (*models.Booking, error) {
	booking, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeFetchError, err, "load booking")
	}
	if booking == nil || booking.CustomerID != customerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
	}
	return booking, nil
}

func slotConflict(conflicts []uuid.UUID) error {
	ids := make([]string, 0, len(conflicts))
	for _, id := range conflicts {
		ids = append(ids, id.String())
	}
	return pkgerrors.New(pkgerrors.CodeSlotConflict, "staff member is already booked for the requested time").
		WithDetails(map[string]any{"conflicting_booking_ids": ids})
}

func classifyInsertError(err error, msg string) error {
	if dbpkg.IsOverlapViolation(err) {
		return pkgerrors.Wrap(pkgerrors.CodeSlotConflict, err, "staff member is already booked for the requested time")
	}
	if dbpkg.IsRetryableTx(err) {
		return pkgerrors.Wrap(pkgerrors.CodeSlotConflict, err, "concurrent booking for the requested time")
	}
	return pkgerrors.Wrap(pkgerrors.CodeCreateError, err, msg)
}

func buildBooking(v *validation.ValidatedBookingData, number string, overridden bool, conflicts []uuid.UUID, actor uuid.UUID) (*models.Booking, error) {
	b := v.Breakdown
	booking := &models.Booking{
		BookingNumber:         number,
		CustomerID:            v.CustomerID,
		ProviderID:            v.Provider.ID,
		Status:                enums.BookingStatusPending,
		LocationType:          v.LocationType,
		ScheduledStartAt:      v.ScheduledStartAt.UTC(),
		ScheduledEndAt:        v.ScheduledEndAt.UTC(),
		Currency:              v.Currency,
		Subtotal:              b.Subtotal,
		PackageDiscount:       b.PackageDiscount,
		PromoDiscount:         b.PromoDiscount,
		LoyaltyDiscount:       b.LoyaltyDiscount,
		MembershipDiscount:    b.MembershipDiscount,
		DiscountTotal:         b.DiscountTotal,
		TravelFee:             b.TravelFee,
		ServiceFeeAmount:      b.ServiceFeeAmount,
		ServiceFeePercentage:  b.ServiceFeePercentage,
		TaxRate:               b.TaxRate,
		TaxAmount:             b.TaxAmount,
		TipAmount:             b.Tip,
		CommissionBase:        b.CommissionBase,
		TotalAmount:           b.Total,
		DepositAmount:         b.DepositAmount,
		AmountToCollect:       b.AmountToCollect,
		LoyaltyPointsRedeemed: b.LoyaltyPointsRedeemed,
		LoyaltyPointsEarned:   b.LoyaltyPointsEarned,
		PromoCodeID:           v.PromoCodeID,
		PackageID:             v.PackageID,
		MembershipID:          v.MembershipID,
		PaymentOption:         v.PaymentOption,
		PaymentMethod:         v.PaymentMethod,
		PaymentStatus:         enums.PaymentStatusPending,
		ConflictOverride:      overridden,
		Notes:                 v.Notes,
	}
	if v.Location != nil {
		id := v.Location.ID
		booking.LocationID = &id
	}
	if a := v.Address; a != nil {
		booking.AddressLine1 = &a.Line1
		booking.AddressLine2 = a.Line2
		booking.City = &a.City
		booking.Region = &a.Region
		booking.PostalCode = &a.PostalCode
		booking.Country = &a.Country
	}
	meta := bookingMetadata{}
	if overridden {
		meta.ConflictingBookingIDs = conflicts
		meta.OverrideAuthorizedBy = &actor
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	booking.Metadata = raw
	return booking, nil
}

func buildServices(bookingID uuid.UUID, planned []validation.PlannedService) []models.BookingService {
	rows := make([]models.BookingService, 0, len(planned))
	for _, p := range planned {
		rows = append(rows, models.BookingService{
			BookingID:        bookingID,
			OfferingID:       p.OfferingID,
			StaffID:          p.StaffID,
			ParticipantName:  p.ParticipantName,
			Price:            p.Price,
			DurationMinutes:  p.DurationMinutes,
			ScheduledStartAt: p.StartAt.UTC(),
			ScheduledEndAt:   p.EndAt.UTC(),
		})
	}
	return rows
}

func decodeMetadata(raw json.RawMessage) bookingMetadata {
	var meta bookingMetadata
	if len(raw) == 0 {
		return meta
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return bookingMetadata{}
	}
	return meta
}

// errFeatureNotDeployed marks a step whose tables are not migrated yet.
var errFeatureNotDeployed = errors.New("feature not deployed")
