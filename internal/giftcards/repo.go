package giftcards

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/glowbook/glowbook-backend/internal/repo"
	"github.com/glowbook/glowbook-backend/pkg/db/models"
	"github.com/glowbook/glowbook-backend/pkg/enums"
)

// Repository reads and mutates gift cards and their reservations.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Base.WithTx(tx)}
}

// FindByCode loads a card by its case-insensitive code, or nil.
func (r *Repository) FindByCode(ctx context.Context, code string) (*models.GiftCard, error) {
	var card models.GiftCard
	err := r.DB(ctx).
		Where("UPPER(code) = ?", strings.ToUpper(strings.TrimSpace(code))).
		First(&card).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// Debit lowers the balance only if it still covers amount. It reports false
// when a concurrent writer spent the balance first.
func (r *Repository) Debit(ctx context.Context, cardID uuid.UUID, amount decimal.Decimal) (bool, error) {
	res := r.DB(ctx).Model(&models.GiftCard{}).
		Where("id = ? AND status = ? AND balance >= ?", cardID, enums.GiftCardStatusActive, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Credit returns amount to the card balance.
func (r *Repository) Credit(ctx context.Context, cardID uuid.UUID, amount decimal.Decimal) error {
	return r.DB(ctx).Model(&models.GiftCard{}).
		Where("id = ?", cardID).
		Update("balance", gorm.Expr("balance + ?", amount)).Error
}

func (r *Repository) CreateReservation(ctx context.Context, reservation *models.GiftCardReservation) error {
	return r.DB(ctx).Create(reservation).Error
}

// FindReservation loads and row-locks a reservation, or nil.
func (r *Repository) FindReservation(ctx context.Context, id uuid.UUID) (*models.GiftCardReservation, error) {
	var reservation models.GiftCardReservation
	err := r.DB(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&reservation, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

// OpenReservations lists the reservations still held for a booking.
func (r *Repository) OpenReservations(ctx context.Context, bookingID uuid.UUID) ([]models.GiftCardReservation, error) {
	var rows []models.GiftCardReservation
	err := r.DB(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("booking_id = ? AND status = ?", bookingID, enums.GiftCardReservationStatusReserved).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// Transition moves a reservation out of reserved. It reports false when the
// reservation already left that state.
func (r *Repository) Transition(ctx context.Context, id uuid.UUID, to enums.GiftCardReservationStatus, at time.Time) (bool, error) {
	updates := map[string]any{"status": to}
	switch to {
	case enums.GiftCardReservationStatusCaptured:
		updates["captured_at"] = at
	case enums.GiftCardReservationStatusReleased:
		updates["released_at"] = at
	}
	res := r.DB(ctx).Model(&models.GiftCardReservation{}).
		Where("id = ? AND status = ?", id, enums.GiftCardReservationStatusReserved).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// StaleReservationIDs returns reserved holds past expiry whose booking has
// not been paid.
func (r *Repository) StaleReservationIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.DB(ctx).
		Model(&models.GiftCardReservation{}).
		Joins("JOIN bookings ON bookings.id = gift_card_reservations.booking_id").
		Where("gift_card_reservations.status = ? AND gift_card_reservations.expires_at < ?", enums.GiftCardReservationStatusReserved, now.UTC()).
		Where("bookings.payment_status <> ?", enums.PaymentStatusPaid).
		Order("gift_card_reservations.expires_at ASC").
		Limit(limit).
		Pluck("gift_card_reservations.id", &ids).Error
	return ids, err
}
