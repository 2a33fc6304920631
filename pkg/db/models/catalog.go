package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Offering is a bookable service sold by a provider.
type Offering struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ProviderID      uuid.UUID       `gorm:"column:provider_id;type:uuid;not null;index"`
	Name            string          `gorm:"column:name;not null"`
	Price           decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	DurationMinutes int             `gorm:"column:duration_minutes;not null"`
	IsActive        bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Offering) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}

// StaffMember performs offerings on behalf of a provider.
type StaffMember struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	ProviderID uuid.UUID `gorm:"column:provider_id;type:uuid;not null;index"`
	Name       string    `gorm:"column:name;not null"`
	IsActive   bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (StaffMember) TableName() string { return "staff" }

func (s *StaffMember) BeforeCreate(*gorm.DB) error {
	assignID(&s.ID)
	return nil
}

// StaffOffering links a staff member to an offering they can perform.
type StaffOffering struct {
	StaffID    uuid.UUID `gorm:"column:staff_id;type:uuid;primaryKey"`
	OfferingID uuid.UUID `gorm:"column:offering_id;type:uuid;primaryKey"`
}

// Resource is a physical asset (chair, room, basin) that appointments occupy.
type Resource struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	ProviderID uuid.UUID `gorm:"column:provider_id;type:uuid;not null;index"`
	Name       string    `gorm:"column:name;not null"`
	Kind       string    `gorm:"column:kind;not null"`
	IsActive   bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (r *Resource) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}

// OfferingResource declares how many resources of a kind an offering needs.
type OfferingResource struct {
	OfferingID uuid.UUID `gorm:"column:offering_id;type:uuid;primaryKey"`
	Kind       string    `gorm:"column:kind;primaryKey"`
	Quantity   int       `gorm:"column:quantity;not null;default:1"`
}

// Addon is an optional extra attached to an offering.
type Addon struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ProviderID      uuid.UUID       `gorm:"column:provider_id;type:uuid;not null;index"`
	OfferingID      *uuid.UUID      `gorm:"column:offering_id;type:uuid"`
	Name            string          `gorm:"column:name;not null"`
	Price           decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	DurationMinutes int             `gorm:"column:duration_minutes;not null;default:0"`
	IsActive        bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (a *Addon) BeforeCreate(*gorm.DB) error {
	assignID(&a.ID)
	return nil
}

// Product is a retail item sold alongside a booking.
type Product struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ProviderID    uuid.UUID       `gorm:"column:provider_id;type:uuid;not null;index"`
	Name          string          `gorm:"column:name;not null"`
	Price         decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	TrackStock    bool            `gorm:"column:track_stock;not null;default:false"`
	StockQuantity int             `gorm:"column:stock_quantity;not null;default:0"`
	IsActive      bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}
