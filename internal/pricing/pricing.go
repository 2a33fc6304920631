package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/glowbook/glowbook-backend/pkg/enums"
)

var hundred = decimal.NewFromInt(100)

// Input is everything the pricing policy needs. Reference data is resolved
// by the caller; Compute never touches storage.
type Input struct {
	ServicesTotal decimal.Decimal
	AddonsTotal   decimal.Decimal
	ProductsTotal decimal.Decimal
	TravelFee     decimal.Decimal
	Tip           decimal.Decimal

	Package    *Adjustment
	Promo      *Adjustment
	LoyaltyPts int64
	Membership *Adjustment

	// ServiceFee is the provider override when set, otherwise the platform rule.
	ServiceFee *FeeRule
	Settings   PlatformSettings

	DepositRequired   bool
	DepositPercentage decimal.Decimal
	PaymentOption     enums.PaymentOption
}

// Breakdown holds every derived monetary field of a booking. It is the single
// source of truth for what must be collected.
type Breakdown struct {
	Subtotal             decimal.Decimal `json:"subtotal"`
	PackageDiscount      decimal.Decimal `json:"package_discount"`
	PromoDiscount        decimal.Decimal `json:"promo_discount"`
	LoyaltyDiscount      decimal.Decimal `json:"loyalty_discount"`
	MembershipDiscount   decimal.Decimal `json:"membership_discount"`
	DiscountTotal        decimal.Decimal `json:"discount_total"`
	CommissionBase       decimal.Decimal `json:"commission_base"`
	TravelFee            decimal.Decimal `json:"travel_fee"`
	ServiceFeeAmount     decimal.Decimal `json:"service_fee_amount"`
	ServiceFeePercentage decimal.Decimal `json:"service_fee_percentage"`
	TaxRate              decimal.Decimal `json:"tax_rate"`
	TaxAmount            decimal.Decimal `json:"tax_amount"`
	Tip                  decimal.Decimal `json:"tip_amount"`
	Total                decimal.Decimal `json:"total_amount"`
	DepositAmount        decimal.Decimal `json:"deposit_amount"`
	AmountToCollect      decimal.Decimal `json:"amount_to_collect"`

	LoyaltyPointsRedeemed int64 `json:"loyalty_points_redeemed"`
	LoyaltyPointsEarned   int64 `json:"loyalty_points_earned"`
}

// Compute derives the booking breakdown.
//
// commission_base = subtotal - discounts, where subtotal is services, add-ons
// and products. Travel fee, service fee, tax and tip sit on top of the base:
// total = commission_base + travel_fee + service_fee + tax + tip.
func Compute(in Input) (Breakdown, error) {
	for name, v := range map[string]decimal.Decimal{
		"services total": in.ServicesTotal,
		"addons total":   in.AddonsTotal,
		"products total": in.ProductsTotal,
		"travel fee":     in.TravelFee,
		"tip":            in.Tip,
	} {
		if v.IsNegative() {
			return Breakdown{}, fmt.Errorf("%s must not be negative", name)
		}
	}
	if in.LoyaltyPts < 0 {
		return Breakdown{}, fmt.Errorf("loyalty points must not be negative")
	}

	subtotal := Round(in.ServicesTotal.Add(in.AddonsTotal).Add(in.ProductsTotal))

	adjustments := make([]Adjustment, 0, 4)
	if in.Package != nil {
		adjustments = append(adjustments, withStage(*in.Package, StagePackage))
	}
	if in.Promo != nil {
		adjustments = append(adjustments, withStage(*in.Promo, StagePromo))
	}
	if in.LoyaltyPts > 0 && in.Settings.LoyaltyPointValue.IsPositive() {
		adjustments = append(adjustments, Adjustment{
			Stage: StageLoyalty,
			Kind:  enums.AmountKindFixed,
			Value: decimal.NewFromInt(in.LoyaltyPts).Mul(in.Settings.LoyaltyPointValue),
		})
	}
	if in.Membership != nil {
		adjustments = append(adjustments, withStage(*in.Membership, StageMembership))
	}

	applied, err := ApplyDiscounts(subtotal, adjustments)
	if err != nil {
		return Breakdown{}, err
	}

	b := Breakdown{
		Subtotal:           subtotal,
		PackageDiscount:    applied.Amount(StagePackage),
		PromoDiscount:      applied.Amount(StagePromo),
		LoyaltyDiscount:    applied.Amount(StageLoyalty),
		MembershipDiscount: applied.Amount(StageMembership),
		DiscountTotal:      applied.Total(),
		CommissionBase:     applied.Final,
		TravelFee:          Round(in.TravelFee),
		Tip:                Round(in.Tip),
	}
	b.LoyaltyPointsRedeemed = pointsUsed(b.LoyaltyDiscount, in.LoyaltyPts, in.Settings.LoyaltyPointValue)

	fee := in.Settings.ServiceFeeRule()
	if in.ServiceFee != nil {
		fee = *in.ServiceFee
	}
	switch fee.Kind {
	case enums.AmountKindPercentage:
		b.ServiceFeePercentage = fee.Value
		b.ServiceFeeAmount = Round(b.CommissionBase.Mul(fee.Value).Div(hundred))
	case enums.AmountKindFixed:
		b.ServiceFeeAmount = Round(fee.Value)
	case "":
	default:
		return Breakdown{}, fmt.Errorf("invalid service fee kind %q", fee.Kind)
	}
	if b.ServiceFeeAmount.IsNegative() {
		return Breakdown{}, fmt.Errorf("service fee must not be negative")
	}

	if in.Settings.TaxEnabled {
		b.TaxRate = in.Settings.TaxRate
		b.TaxAmount = Round(b.CommissionBase.Mul(in.Settings.TaxRate))
	}

	b.Total = b.CommissionBase.Add(b.TravelFee).Add(b.ServiceFeeAmount).Add(b.TaxAmount).Add(b.Tip)
	b.LoyaltyPointsEarned = b.CommissionBase.Mul(in.Settings.LoyaltyEarnRate).Floor().IntPart()

	b.AmountToCollect = b.Total
	if in.DepositRequired && in.PaymentOption == enums.PaymentOptionDeposit {
		b.DepositAmount = Deposit(b.Total, in.DepositPercentage)
		b.AmountToCollect = b.DepositAmount
	}
	return b, nil
}

// Deposit returns percentage of total rounded up to the whole currency unit,
// never more than total.
func Deposit(total, percentage decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() || !percentage.IsPositive() {
		return decimal.Zero
	}
	d := total.Mul(percentage).Div(hundred).Ceil()
	if d.GreaterThan(total) {
		return total
	}
	return d
}

// Round rounds half-up to minor units.
func Round(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

func withStage(a Adjustment, s Stage) Adjustment {
	a.Stage = s
	return a
}

func pointsUsed(discount decimal.Decimal, requested int64, pointValue decimal.Decimal) int64 {
	if !discount.IsPositive() || !pointValue.IsPositive() {
		return 0
	}
	used := discount.Div(pointValue).Ceil().IntPart()
	if used > requested {
		return requested
	}
	return used
}
