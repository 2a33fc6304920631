package settlement

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/glowbook/glowbook-backend/internal/repo"
	"github.com/glowbook/glowbook-backend/pkg/db/models"
)

// paymentColumns are the booking columns settlement owns.
var paymentColumns = []string{
	"status",
	"payment_method",
	"payment_status",
	"gift_card_amount",
	"wallet_amount",
	"amount_paid",
	"payment_provider",
	"payment_reference",
	"payment_date",
	"updated_at",
}

// Repository reads and updates the payment side of bookings.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Base.WithTx(tx)}
}

// LockBooking loads a booking row for update, or nil.
func (r *Repository) LockBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := r.DB(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&booking, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// FindByPaymentReference resolves the booking a gateway reference belongs to.
func (r *Repository) FindByPaymentReference(ctx context.Context, reference string) (*models.Booking, error) {
	var booking models.Booking
	err := r.DB(ctx).First(&booking, "payment_reference = ?", reference).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// FindProvider loads the provider a booking is with.
func (r *Repository) FindProvider(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	var provider models.Provider
	if err := r.DB(ctx).First(&provider, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &provider, nil
}

// SavePayment writes the payment columns of booking, zero values included.
func (r *Repository) SavePayment(ctx context.Context, booking *models.Booking) error {
	return r.DB(ctx).Model(booking).Select(paymentColumns).Updates(booking).Error
}
