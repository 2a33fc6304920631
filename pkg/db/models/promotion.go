package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/glowbook/glowbook-backend/pkg/enums"
)

// PromoCode is a customer-entered discount code. A nil ProviderID makes the
// code valid platform-wide.
type PromoCode struct {
	ID          uuid.UUID        `gorm:"type:uuid;primaryKey"`
	Code        string           `gorm:"column:code;not null;uniqueIndex"`
	ProviderID  *uuid.UUID       `gorm:"column:provider_id;type:uuid"`
	Kind        enums.AmountKind `gorm:"column:kind;type:text;not null"`
	Value       decimal.Decimal  `gorm:"column:value;type:numeric(12,2);not null"`
	MaxDiscount *decimal.Decimal `gorm:"column:max_discount;type:numeric(12,2)"`
	MinSubtotal *decimal.Decimal `gorm:"column:min_subtotal;type:numeric(12,2)"`
	StartsAt    *time.Time       `gorm:"column:starts_at"`
	EndsAt      *time.Time       `gorm:"column:ends_at"`
	UsageLimit  *int             `gorm:"column:usage_limit"`
	UsedCount   int              `gorm:"column:used_count;not null;default:0"`
	IsActive    bool             `gorm:"column:is_active;not null;default:true"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
}

func (p *PromoCode) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

// ServicePackage bundles offerings under a package discount.
type ServicePackage struct {
	ID            uuid.UUID        `gorm:"type:uuid;primaryKey"`
	ProviderID    uuid.UUID        `gorm:"column:provider_id;type:uuid;not null;index"`
	Name          string           `gorm:"column:name;not null"`
	DiscountKind  enums.AmountKind `gorm:"column:discount_kind;type:text;not null"`
	DiscountValue decimal.Decimal  `gorm:"column:discount_value;type:numeric(12,2);not null"`
	IsActive      bool             `gorm:"column:is_active;not null;default:true"`
	CreatedAt     time.Time        `gorm:"column:created_at;autoCreateTime"`

	Offerings []ServicePackageOffering `gorm:"foreignKey:PackageID"`
}

func (p *ServicePackage) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

// ServicePackageOffering lists the offerings a package covers.
type ServicePackageOffering struct {
	PackageID  uuid.UUID `gorm:"column:package_id;type:uuid;primaryKey"`
	OfferingID uuid.UUID `gorm:"column:offering_id;type:uuid;primaryKey"`
}

// Membership is a customer's subscription to a discount plan.
type Membership struct {
	ID                 uuid.UUID              `gorm:"type:uuid;primaryKey"`
	UserID             uuid.UUID              `gorm:"column:user_id;type:uuid;not null;index"`
	ProviderID         *uuid.UUID             `gorm:"column:provider_id;type:uuid"`
	PlanName           string                 `gorm:"column:plan_name;not null"`
	DiscountPercentage decimal.Decimal        `gorm:"column:discount_percentage;type:numeric(5,2);not null"`
	Status             enums.MembershipStatus `gorm:"column:status;type:text;not null;default:'active'"`
	ExpiresAt          *time.Time             `gorm:"column:expires_at"`
	CreatedAt          time.Time              `gorm:"column:created_at;autoCreateTime"`
}

func (m *Membership) BeforeCreate(*gorm.DB) error {
	assignID(&m.ID)
	return nil
}

// LoyaltyAccount holds a customer's redeemable points.
type LoyaltyAccount struct {
	UserID        uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	PointsBalance int64     `gorm:"column:points_balance;not null;default:0"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// PlatformSetting is the single-row table of marketplace-wide pricing knobs.
type PlatformSetting struct {
	ID                    int              `gorm:"column:id;primaryKey"`
	CommissionRate        decimal.Decimal  `gorm:"column:commission_rate;type:numeric(5,4);not null"`
	CommissionEnabled     bool             `gorm:"column:commission_enabled;not null"`
	ServiceFeeKind        enums.AmountKind `gorm:"column:service_fee_kind;type:text;not null"`
	ServiceFeeValue       decimal.Decimal  `gorm:"column:service_fee_value;type:numeric(12,2);not null"`
	TaxRate               decimal.Decimal  `gorm:"column:tax_rate;type:numeric(5,4);not null"`
	TaxEnabled            bool             `gorm:"column:tax_enabled;not null"`
	AllowConflictOverride bool             `gorm:"column:allow_conflict_override;not null"`
	LoyaltyPointValue     decimal.Decimal  `gorm:"column:loyalty_point_value;type:numeric(12,4);not null"`
	LoyaltyEarnRate       decimal.Decimal  `gorm:"column:loyalty_earn_rate;type:numeric(12,4);not null"`
	UpdatedAt             time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
