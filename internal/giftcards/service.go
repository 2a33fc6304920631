package giftcards

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/glowbook/glowbook-backend/pkg/db/models"
	"github.com/glowbook/glowbook-backend/pkg/enums"
	pkgerrors "github.com/glowbook/glowbook-backend/pkg/errors"
	"github.com/glowbook/glowbook-backend/pkg/logger"
	"github.com/glowbook/glowbook-backend/pkg/outbox"
	"github.com/glowbook/glowbook-backend/pkg/outbox/payloads"
)

const defaultReservationTTL = 2 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ReserveRequest asks for up to Amount from the card identified by Code.
type ReserveRequest struct {
	Code      string
	Amount    decimal.Decimal
	BookingID uuid.UUID
	Currency  string
}

// Service holds, captures and releases gift card balances.
type Service struct {
	tx     txRunner
	repo   *Repository
	outbox outboxPublisher
	logg   *logger.Logger
	ttl    time.Duration
	now    func() time.Time
}

// NewService builds the gift card service. A zero ttl uses two hours.
func NewService(tx txRunner, repo *Repository, publisher outboxPublisher, logg *logger.Logger, ttl time.Duration) (*Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("gift card repository required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if ttl <= 0 {
		ttl = defaultReservationTTL
	}
	return &Service{
		tx:     tx,
		repo:   repo,
		outbox: publisher,
		logg:   logg,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Reserve holds min(balance, amount) against the booking. The card balance
// drops immediately; the hold is captured on payment or released later.
func (s *Service) Reserve(ctx context.Context, req ReserveRequest) (*models.GiftCardReservation, error) {
	if strings.TrimSpace(req.Code) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGiftCardInvalid, "gift card code is required")
	}
	if !req.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeGiftCardInvalid, "nothing to charge to the gift card")
	}

	var reservation *models.GiftCardReservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		card, err := repo.FindByCode(ctx, req.Code)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load gift card")
		}
		now := s.now()
		if err := usable(card, req.Currency, now); err != nil {
			return err
		}

		amount := decimal.Min(card.Balance, req.Amount).Round(2)
		ok, err := repo.Debit(ctx, card.ID, amount)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "debit gift card")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeGiftCardInvalid, "gift card balance changed, try again")
		}

		reservation = &models.GiftCardReservation{
			GiftCardID: card.ID,
			BookingID:  req.BookingID,
			Amount:     amount,
			Currency:   card.Currency,
			Status:     enums.GiftCardReservationStatusReserved,
			ExpiresAt:  now.Add(s.ttl),
		}
		if err := repo.CreateReservation(ctx, reservation); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create gift card reservation")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(s.logg.WithBookingID(ctx, req.BookingID.String()), map[string]any{
		"reservation_id": reservation.ID.String(),
		"amount":         reservation.Amount.StringFixed(2),
	})
	s.logg.Info(logCtx, "gift_card.reserved")
	return reservation, nil
}

func usable(card *models.GiftCard, currency string, now time.Time) error {
	if card == nil {
		return pkgerrors.New(pkgerrors.CodeGiftCardInvalid, "gift card not found")
	}
	if card.Status != enums.GiftCardStatusActive {
		return pkgerrors.New(pkgerrors.CodeGiftCardInvalid, "gift card is not active")
	}
	if card.ExpiresAt != nil && !card.ExpiresAt.After(now) {
		return pkgerrors.New(pkgerrors.CodeGiftCardInvalid, "gift card has expired")
	}
	if currency != "" && !strings.EqualFold(card.Currency, currency) {
		return pkgerrors.New(pkgerrors.CodeGiftCardInvalid, "gift card currency does not match the booking")
	}
	if !card.Balance.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeGiftCardInvalid, "gift card has no remaining balance")
	}
	return nil
}

// Capture finalizes every open hold for the booking inside tx and returns
// the captured total.
func (s *Service) Capture(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID) (decimal.Decimal, error) {
	repo := s.repo.WithTx(tx)
	open, err := repo.OpenReservations(ctx, bookingID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	now := s.now()
	for _, r := range open {
		ok, err := repo.Transition(ctx, r.ID, enums.GiftCardReservationStatusCaptured, now)
		if err != nil {
			return decimal.Zero, err
		}
		if ok {
			total = total.Add(r.Amount)
		}
	}
	return total, nil
}

// Release returns one hold to its card.
func (s *Service) Release(ctx context.Context, reservationID uuid.UUID, reason string) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		reservation, err := s.repo.WithTx(tx).FindReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if reservation == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "gift card reservation not found")
		}
		return s.release(ctx, tx, *reservation, reason)
	})
}

// ReleaseForBooking returns every open hold of the booking inside tx.
func (s *Service) ReleaseForBooking(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, reason string) error {
	open, err := s.repo.WithTx(tx).OpenReservations(ctx, bookingID)
	if err != nil {
		return err
	}
	for _, r := range open {
		if err := s.release(ctx, tx, r, reason); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) release(ctx context.Context, tx *gorm.DB, r models.GiftCardReservation, reason string) error {
	repo := s.repo.WithTx(tx)
	now := s.now()
	ok, err := repo.Transition(ctx, r.ID, enums.GiftCardReservationStatusReleased, now)
	if err != nil {
		return err
	}
	if !ok {
		// already captured or released
		return nil
	}
	if err := repo.Credit(ctx, r.GiftCardID, r.Amount); err != nil {
		return err
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventGiftCardReservationReleased,
		AggregateType: enums.AggregateGiftCardReservation,
		AggregateID:   r.ID,
		Data: payloads.GiftCardReservationReleasedEvent{
			ReservationID: r.ID,
			GiftCardID:    r.GiftCardID,
			BookingID:     r.BookingID,
			Amount:        r.Amount,
			Reason:        reason,
			ReleasedAt:    now,
		},
	}); err != nil {
		return err
	}

	logCtx := s.logg.WithFields(s.logg.WithBookingID(ctx, r.BookingID.String()), map[string]any{
		"reservation_id": r.ID.String(),
		"amount":         r.Amount.StringFixed(2),
		"reason":         reason,
	})
	s.logg.Info(logCtx, "gift_card.released")
	return nil
}

// ReleaseStale releases holds past expiry whose booking never got paid. Each
// hold is released in its own transaction; the count covers successes only.
func (s *Service) ReleaseStale(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := s.repo.StaleReservationIDs(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	released := 0
	var errs error
	for _, id := range ids {
		if err := s.Release(ctx, id, "expired"); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("release %s: %w", id, err))
			continue
		}
		released++
	}
	return released, errs
}
