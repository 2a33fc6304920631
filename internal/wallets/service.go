package wallets

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/glowbook/glowbook-backend/pkg/db/models"
	"github.com/glowbook/glowbook-backend/pkg/enums"
	pkgerrors "github.com/glowbook/glowbook-backend/pkg/errors"
	"github.com/glowbook/glowbook-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Movement describes one debit or credit against a user's wallet.
type Movement struct {
	UserID        uuid.UUID
	Amount        decimal.Decimal
	Description   string
	ReferenceID   *uuid.UUID
	ReferenceType string
}

// Service moves money in and out of customer wallets.
type Service struct {
	tx   txRunner
	repo *Repository
	logg *logger.Logger
}

func NewService(tx txRunner, repo *Repository, logg *logger.Logger) (*Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{tx: tx, repo: repo, logg: logg}, nil
}

// Balance returns zero for users without a wallet.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	wallet, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeWalletError, err, "load wallet")
	}
	if wallet == nil {
		return decimal.Zero, nil
	}
	return wallet.Balance, nil
}

// DebitSelf atomically takes m.Amount from the user's own wallet and appends
// a debit transaction carrying the balance that remains.
func (s *Service) DebitSelf(ctx context.Context, m Movement) (*models.WalletTransaction, error) {
	if !m.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeWalletError, "debit amount must be positive")
	}
	var txn *models.WalletTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		wallet, err := repo.FindByUser(ctx, m.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeWalletError, err, "load wallet")
		}
		if wallet == nil {
			return pkgerrors.New(pkgerrors.CodeWalletError, "wallet not found")
		}
		ok, err := repo.Debit(ctx, wallet.ID, m.Amount)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeWalletError, err, "debit wallet")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeWalletError, "insufficient wallet balance")
		}
		txn, err = s.record(ctx, repo, wallet.ID, enums.WalletTransactionTypeDebit, m)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logMovement(ctx, "wallet.debited", m, txn)
	return txn, nil
}

// CreditSelf returns money to the user's wallet, typically reversing a debit
// whose booking could not be paid.
func (s *Service) CreditSelf(ctx context.Context, m Movement) (*models.WalletTransaction, error) {
	var txn *models.WalletTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		txn, err = s.credit(ctx, tx, m)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logMovement(ctx, "wallet.credited", m, txn)
	return txn, nil
}

// CreditSelfTx is CreditSelf inside the caller's transaction.
func (s *Service) CreditSelfTx(ctx context.Context, tx *gorm.DB, m Movement) (*models.WalletTransaction, error) {
	txn, err := s.credit(ctx, tx, m)
	if err != nil {
		return nil, err
	}
	s.logMovement(ctx, "wallet.credited", m, txn)
	return txn, nil
}

func (s *Service) credit(ctx context.Context, tx *gorm.DB, m Movement) (*models.WalletTransaction, error) {
	if !m.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeWalletError, "credit amount must be positive")
	}
	repo := s.repo.WithTx(tx)
	wallet, err := repo.FindByUser(ctx, m.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeWalletError, err, "load wallet")
	}
	if wallet == nil {
		return nil, pkgerrors.New(pkgerrors.CodeWalletError, "wallet not found")
	}
	if err := repo.Credit(ctx, wallet.ID, m.Amount); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeWalletError, err, "credit wallet")
	}
	return s.record(ctx, repo, wallet.ID, enums.WalletTransactionTypeCredit, m)
}

func (s *Service) record(ctx context.Context, repo *Repository, walletID uuid.UUID, kind enums.WalletTransactionType, m Movement) (*models.WalletTransaction, error) {
	after, err := repo.CurrentBalance(ctx, walletID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeWalletError, err, "read wallet balance")
	}
	txn := &models.WalletTransaction{
		WalletID:     walletID,
		Type:         kind,
		Amount:       m.Amount,
		BalanceAfter: after,
		Description:  m.Description,
		ReferenceID:  m.ReferenceID,
	}
	if m.ReferenceType != "" {
		refType := m.ReferenceType
		txn.ReferenceType = &refType
	}
	if err := repo.CreateTransaction(ctx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeWalletError, err, "record wallet transaction")
	}
	return txn, nil
}

func (s *Service) logMovement(ctx context.Context, msg string, m Movement, txn *models.WalletTransaction) {
	fields := map[string]any{
		"user_id":       m.UserID.String(),
		"amount":        m.Amount.StringFixed(2),
		"balance_after": txn.BalanceAfter.StringFixed(2),
	}
	if m.ReferenceID != nil {
		fields["reference_id"] = m.ReferenceID.String()
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), msg)
}
