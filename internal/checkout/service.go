// Package checkout creates bookings end to end: validate the draft, reserve
// the slots, run the follow-up steps and settle the payment.
package checkout

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/glowbook/glowbook-backend/internal/bookings"
	"github.com/glowbook/glowbook-backend/internal/settlement"
	"github.com/glowbook/glowbook-backend/internal/validation"
	"github.com/glowbook/glowbook-backend/pkg/db/models"
	"github.com/glowbook/glowbook-backend/pkg/enums"
	pkgerrors "github.com/glowbook/glowbook-backend/pkg/errors"
	"github.com/glowbook/glowbook-backend/pkg/logger"
	"github.com/glowbook/glowbook-backend/pkg/metrics"
)

type settler interface {
	Settle(ctx context.Context, in settlement.Input) (*settlement.Result, error)
}

// Result is a created booking. PaymentURL is set when the customer must
// finish paying on a hosted checkout page.
type Result struct {
	Booking    *models.Booking `json:"booking"`
	PaymentURL *string         `json:"payment_url"`
}

// Service executes booking creation.
type Service interface {
	CreateBooking(ctx context.Context, draft validation.BookingDraft, userID uuid.UUID) (*Result, error)
	RetrySettlement(ctx context.Context, bookingID, userID uuid.UUID, draft validation.FundingDraft) (*Result, error)
}

// ServiceParams wires the checkout service.
type ServiceParams struct {
	Validator  validation.Validator
	Bookings   bookings.Service
	Settlement settler
	Metrics    *metrics.BookingMetrics
	Logger     *logger.Logger
}

type service struct {
	validator  validation.Validator
	bookings   bookings.Service
	settlement settler
	metrics    *metrics.BookingMetrics
	logg       *logger.Logger
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Validator == nil {
		return nil, fmt.Errorf("validator required")
	}
	if params.Bookings == nil {
		return nil, fmt.Errorf("bookings service required")
	}
	if params.Settlement == nil {
		return nil, fmt.Errorf("settlement service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		validator:  params.Validator,
		bookings:   params.Bookings,
		settlement: params.Settlement,
		metrics:    params.Metrics,
		logg:       params.Logger,
	}, nil
}

func (s *service) CreateBooking(ctx context.Context, draft validation.BookingDraft, userID uuid.UUID) (*Result, error) {
	result, err := s.create(ctx, draft, userID)
	if err != nil {
		err = normalize(err)
		s.metrics.IncCreate(string(pkgerrors.As(err).Code()))
		return nil, err
	}
	s.metrics.IncCreate("ok")
	return result, nil
}

func (s *service) create(ctx context.Context, draft validation.BookingDraft, userID uuid.UUID) (*Result, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}
	ctx = s.logg.WithUserID(ctx, userID.String())

	validated, err := s.validator.Validate(ctx, draft, userID)
	if err != nil {
		return nil, err
	}

	booking, err := s.bookings.Reserve(ctx, bookings.ReserveInput{Validated: validated, ActorUserID: userID})
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithBookingID(ctx, booking.ID.String())

	// Follow-up steps never fail the booking; each failure is queued for retry.
	if err := s.bookings.RunPostCreation(ctx, booking, validated); err != nil {
		s.logg.Error(ctx, "checkout.post_creation_incomplete", err)
	}

	return s.settle(ctx, booking, validated, "checkout.booking_created")
}

// RetrySettlement settles a reserved booking again with new funding. The
// booking keeps its slot and its amounts.
func (s *service) RetrySettlement(ctx context.Context, bookingID, userID uuid.UUID, draft validation.FundingDraft) (*Result, error) {
	result, err := s.retry(ctx, bookingID, userID, draft)
	if err != nil {
		err = normalize(err)
		s.metrics.IncRetry(string(pkgerrors.As(err).Code()))
		return nil, err
	}
	s.metrics.IncRetry("ok")
	return result, nil
}

func (s *service) retry(ctx context.Context, bookingID, userID uuid.UUID, draft validation.FundingDraft) (*Result, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}
	ctx = s.logg.WithBookingID(s.logg.WithUserID(ctx, userID.String()), bookingID.String())

	booking, err := s.bookings.FindForCustomer(ctx, bookingID, userID)
	if err != nil {
		return nil, err
	}
	if !retryable(booking) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "booking is not awaiting payment").WithDetails(map[string]any{
			"booking_id":     booking.ID,
			"status":         booking.Status,
			"payment_status": booking.PaymentStatus,
		})
	}
	validated, err := s.validator.ValidateFunding(ctx, booking, draft, userID)
	if err != nil {
		return nil, err
	}
	return s.settle(ctx, booking, validated, "checkout.settlement_retried")
}

// retryable reports whether the booking is still awaiting settlement with
// no payment in flight or collected. A pending payment with a reference is
// waiting on the gateway.
func retryable(b *models.Booking) bool {
	if b.Status != enums.BookingStatusPending {
		return false
	}
	switch b.PaymentStatus {
	case enums.PaymentStatusFailed:
		return true
	case enums.PaymentStatusPending:
		return b.PaymentReference == nil && !b.AmountPaid.IsPositive()
	default:
		return false
	}
}

func (s *service) settle(ctx context.Context, booking *models.Booking, validated *validation.ValidatedBookingData, event string) (*Result, error) {
	settled, err := s.settlement.Settle(ctx, settlement.Input{Booking: booking, Validated: validated})
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "checkout.settlement_failed")
		return nil, withBooking(err, booking)
	}
	s.metrics.IncSettlement(string(settled.Path))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"booking_number": settled.Booking.BookingNumber,
		"payment_status": settled.Booking.PaymentStatus.String(),
		"path":           string(settled.Path),
	}), event)

	return &Result{Booking: settled.Booking, PaymentURL: settled.PaymentURL}, nil
}

// withBooking names the reserved booking on a settlement error so the caller
// can retry it with other funding.
func withBooking(err error, booking *models.Booking) error {
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "settle booking")
	}
	details := map[string]any{}
	if existing, ok := typed.Details().(map[string]any); ok {
		for k, v := range existing {
			details[k] = v
		}
	}
	details["booking_id"] = booking.ID
	details["booking_number"] = booking.BookingNumber
	return pkgerrors.Wrap(typed.Code(), err, typed.Message()).WithDetails(details)
}

// normalize keeps coded errors and files anything else as internal.
func normalize(err error) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create booking")
}
