package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/glowbook/glowbook-backend/pkg/db/models"
)

// Repository manages persistence for payment and finance transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	PaymentExists(ctx context.Context, reference string) (bool, error)
	FinanceExists(ctx context.Context, bookingID uuid.UUID) (bool, error)
	CreatePayment(ctx context.Context, txn *models.PaymentTransaction) error
	CreateFinance(ctx context.Context, rows []models.FinanceTransaction) error
	ListFinance(ctx context.Context, bookingID uuid.UUID) ([]models.FinanceTransaction, error)
	ListPayments(ctx context.Context, bookingID uuid.UUID) ([]models.PaymentTransaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) PaymentExists(ctx context.Context, reference string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("reference = ?", reference).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) FinanceExists(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.FinanceTransaction{}).
		Where("booking_id = ?", bookingID).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) CreatePayment(ctx context.Context, txn *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) CreateFinance(ctx context.Context, rows []models.FinanceTransaction) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

func (r *repository) ListFinance(ctx context.Context, bookingID uuid.UUID) ([]models.FinanceTransaction, error) {
	var rows []models.FinanceTransaction
	if err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListPayments(ctx context.Context, bookingID uuid.UUID) ([]models.PaymentTransaction, error) {
	var rows []models.PaymentTransaction
	if err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
