package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/glowbook/glowbook-backend/pkg/enums"
)

// Provider is a salon or independent professional selling services.
type Provider struct {
	ID                         uuid.UUID         `gorm:"type:uuid;primaryKey"`
	OwnerUserID                uuid.UUID         `gorm:"column:owner_user_id;type:uuid;not null;index"`
	Name                       string            `gorm:"column:name;not null"`
	Currency                   string            `gorm:"column:currency;type:text;not null;default:'USD'"`
	RequiresManualConfirmation bool              `gorm:"column:requires_manual_confirmation;not null;default:false"`
	DepositRequired            bool              `gorm:"column:deposit_required;not null;default:false"`
	DepositPercentage          decimal.Decimal   `gorm:"column:deposit_percentage;type:numeric(5,2);not null;default:0"`
	ServiceFeeKind             *enums.AmountKind `gorm:"column:service_fee_kind;type:text"`
	ServiceFeeValue            *decimal.Decimal  `gorm:"column:service_fee_value;type:numeric(12,2)"`
	OffersHomeService          bool              `gorm:"column:offers_home_service;not null;default:false"`
	OffersBusinessLocation     bool              `gorm:"column:offers_business_location;not null;default:true"`
	TravelFee                  decimal.Decimal   `gorm:"column:travel_fee;type:numeric(12,2);not null;default:0"`
	IsActive                   bool              `gorm:"column:is_active;not null;default:true"`
	CreatedAt                  time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                  time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Provider) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

// ProviderLocation is a physical place where a provider receives customers.
type ProviderLocation struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	ProviderID   uuid.UUID `gorm:"column:provider_id;type:uuid;not null;index"`
	Label        string    `gorm:"column:label;not null"`
	AddressLine1 string    `gorm:"column:address_line1;not null"`
	AddressLine2 *string   `gorm:"column:address_line2"`
	City         string    `gorm:"column:city;not null"`
	Region       string    `gorm:"column:region;not null"`
	PostalCode   string    `gorm:"column:postal_code;not null"`
	Country      string    `gorm:"column:country;not null"`
	IsActive     bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (l *ProviderLocation) BeforeCreate(*gorm.DB) error {
	assignID(&l.ID)
	return nil
}
