package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/glowbook/glowbook-backend/pkg/enums"
)

// GiftCard is a stored-value card redeemable against bookings.
type GiftCard struct {
	ID        uuid.UUID            `gorm:"type:uuid;primaryKey"`
	Code      string               `gorm:"column:code;not null;uniqueIndex"`
	Currency  string               `gorm:"column:currency;type:text;not null"`
	Balance   decimal.Decimal      `gorm:"column:balance;type:numeric(12,2);not null"`
	Status    enums.GiftCardStatus `gorm:"column:status;type:text;not null;default:'active'"`
	ExpiresAt *time.Time           `gorm:"column:expires_at"`
	CreatedAt time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (g *GiftCard) BeforeCreate(*gorm.DB) error {
	assignID(&g.ID)
	return nil
}

// GiftCardReservation holds part of a gift card balance against a booking
// until it is captured or released.
type GiftCardReservation struct {
	ID         uuid.UUID                       `gorm:"type:uuid;primaryKey"`
	GiftCardID uuid.UUID                       `gorm:"column:gift_card_id;type:uuid;not null;index"`
	BookingID  uuid.UUID                       `gorm:"column:booking_id;type:uuid;not null;index"`
	Amount     decimal.Decimal                 `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency   string                          `gorm:"column:currency;type:text;not null"`
	Status     enums.GiftCardReservationStatus `gorm:"column:status;type:text;not null;default:'reserved'"`
	ExpiresAt  time.Time                       `gorm:"column:expires_at;not null"`
	CapturedAt *time.Time                      `gorm:"column:captured_at"`
	ReleasedAt *time.Time                      `gorm:"column:released_at"`
	CreatedAt  time.Time                       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time                       `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *GiftCardReservation) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}

// Wallet is a customer's platform balance.
type Wallet struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID       `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	Currency  string          `gorm:"column:currency;type:text;not null"`
	Balance   decimal.Decimal `gorm:"column:balance;type:numeric(12,2);not null;default:0"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (w *Wallet) BeforeCreate(*gorm.DB) error {
	assignID(&w.ID)
	return nil
}

// WalletTransaction is an append-only movement on a wallet.
type WalletTransaction struct {
	ID            uuid.UUID                   `gorm:"type:uuid;primaryKey"`
	WalletID      uuid.UUID                   `gorm:"column:wallet_id;type:uuid;not null;index"`
	Type          enums.WalletTransactionType `gorm:"column:type;type:text;not null"`
	Amount        decimal.Decimal             `gorm:"column:amount;type:numeric(12,2);not null"`
	BalanceAfter  decimal.Decimal             `gorm:"column:balance_after;type:numeric(12,2);not null"`
	Description   string                      `gorm:"column:description;not null"`
	ReferenceID   *uuid.UUID                  `gorm:"column:reference_id;type:uuid"`
	ReferenceType *string                     `gorm:"column:reference_type"`
	CreatedAt     time.Time                   `gorm:"column:created_at;autoCreateTime"`
}

func (t *WalletTransaction) BeforeCreate(*gorm.DB) error {
	assignID(&t.ID)
	return nil
}

// SavedPaymentMethod is a card a customer stored with a gateway for
// off-session charges.
type SavedPaymentMethod struct {
	ID                      uuid.UUID             `gorm:"type:uuid;primaryKey"`
	UserID                  uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	Provider                enums.PaymentProvider `gorm:"column:provider;type:text;not null"`
	ProviderCustomerID      string                `gorm:"column:provider_customer_id;not null"`
	ProviderPaymentMethodID string                `gorm:"column:provider_payment_method_id;not null;uniqueIndex"`
	CardBrand               *string               `gorm:"column:card_brand"`
	CardLast4               *string               `gorm:"column:card_last4"`
	IsDefault               bool                  `gorm:"column:is_default;not null;default:false"`
	CreatedAt               time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (m *SavedPaymentMethod) BeforeCreate(*gorm.DB) error {
	assignID(&m.ID)
	return nil
}
