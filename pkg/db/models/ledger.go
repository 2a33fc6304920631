package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/glowbook/glowbook-backend/pkg/enums"
)

// PaymentTransaction records money collected for a booking. Rows are never
// updated after insert.
type PaymentTransaction struct {
	ID            uuid.UUID             `gorm:"type:uuid;primaryKey"`
	BookingID     uuid.UUID             `gorm:"column:booking_id;type:uuid;not null;index"`
	CustomerID    uuid.UUID             `gorm:"column:customer_id;type:uuid;not null"`
	Provider      enums.PaymentProvider `gorm:"column:provider;type:text;not null"`
	FundingSource enums.FundingSource   `gorm:"column:funding_source;type:text;not null"`
	Reference     string                `gorm:"column:reference;not null;uniqueIndex"`
	Amount        decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	Fees          decimal.Decimal       `gorm:"column:fees;type:numeric(12,2);not null;default:0"`
	Net           decimal.Decimal       `gorm:"column:net;type:numeric(12,2);not null"`
	Currency      string                `gorm:"column:currency;type:text;not null"`
	Status        enums.PaymentStatus   `gorm:"column:status;type:text;not null"`
	Metadata      json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (t *PaymentTransaction) BeforeCreate(*gorm.DB) error {
	assignID(&t.ID)
	return nil
}

// FinanceTransaction is one typed accounting entry for a settled booking.
// Net is Amount after commission; pass-through entries carry zero.
type FinanceTransaction struct {
	ID          uuid.UUID                    `gorm:"type:uuid;primaryKey"`
	BookingID   uuid.UUID                    `gorm:"column:booking_id;type:uuid;not null;uniqueIndex:ux_finance_transactions_booking_type"`
	ProviderID  uuid.UUID                    `gorm:"column:provider_id;type:uuid;not null;index"`
	Type        enums.FinanceTransactionType `gorm:"column:type;type:text;not null;uniqueIndex:ux_finance_transactions_booking_type"`
	Amount      decimal.Decimal              `gorm:"column:amount;type:numeric(12,2);not null"`
	Commission  decimal.Decimal              `gorm:"column:commission;type:numeric(12,2);not null;default:0"`
	Net         decimal.Decimal              `gorm:"column:net;type:numeric(12,2);not null"`
	Currency    string                       `gorm:"column:currency;type:text;not null"`
	Description string                       `gorm:"column:description;not null"`
	CreatedAt   time.Time                    `gorm:"column:created_at;autoCreateTime"`
}

func (t *FinanceTransaction) BeforeCreate(*gorm.DB) error {
	assignID(&t.ID)
	return nil
}
