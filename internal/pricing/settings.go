package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/glowbook/glowbook-backend/pkg/enums"
)

// PlatformSettings is the marketplace-wide pricing snapshot taken once per
// booking attempt.
type PlatformSettings struct {
	CommissionRate        decimal.Decimal  `json:"commission_rate"`
	CommissionEnabled     bool             `json:"commission_enabled"`
	ServiceFeeKind        enums.AmountKind `json:"service_fee_kind"`
	ServiceFeeValue       decimal.Decimal  `json:"service_fee_value"`
	TaxRate               decimal.Decimal  `json:"tax_rate"`
	TaxEnabled            bool             `json:"tax_enabled"`
	AllowConflictOverride bool             `json:"allow_conflict_override"`
	LoyaltyPointValue     decimal.Decimal  `json:"loyalty_point_value"`
	LoyaltyEarnRate       decimal.Decimal  `json:"loyalty_earn_rate"`
}

// FeeRule is a percentage or fixed charge.
type FeeRule struct {
	Kind  enums.AmountKind
	Value decimal.Decimal
}

// ServiceFeeRule returns the platform service fee rule.
func (s PlatformSettings) ServiceFeeRule() FeeRule {
	return FeeRule{Kind: s.ServiceFeeKind, Value: s.ServiceFeeValue}
}

// Commission returns the platform commission owed on base.
func (s PlatformSettings) Commission(base decimal.Decimal) decimal.Decimal {
	if !s.CommissionEnabled || base.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return Round(base.Mul(s.CommissionRate))
}
