package wallets

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/glowbook/glowbook-backend/internal/repo"
	"github.com/glowbook/glowbook-backend/pkg/db/models"
)

type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Base.WithTx(tx)}
}

// FindByUser returns the user's wallet, or nil when none exists.
func (r *Repository) FindByUser(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.DB(ctx).First(&wallet, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// Debit subtracts amount only while the balance still covers it.
func (r *Repository) Debit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) (bool, error) {
	res := r.DB(ctx).Model(&models.Wallet{}).
		Where("id = ? AND balance >= ?", walletID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) Credit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) error {
	return r.DB(ctx).Model(&models.Wallet{}).
		Where("id = ?", walletID).
		Update("balance", gorm.Expr("balance + ?", amount)).Error
}

// CurrentBalance rereads the balance after a write in the same transaction.
func (r *Repository) CurrentBalance(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	var wallet models.Wallet
	if err := r.DB(ctx).Select("balance").First(&wallet, "id = ?", walletID).Error; err != nil {
		return decimal.Zero, err
	}
	return wallet.Balance, nil
}

func (r *Repository) CreateTransaction(ctx context.Context, txn *models.WalletTransaction) error {
	return r.DB(ctx).Create(txn).Error
}
