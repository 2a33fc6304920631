package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/glowbook/glowbook-backend/pkg/enums"
)

// Stage identifies a discount in the fixed application order.
type Stage int

const (
	StagePackage Stage = iota + 1
	StagePromo
	StageLoyalty
	StageMembership
)

func (s Stage) String() string {
	switch s {
	case StagePackage:
		return "package"
	case StagePromo:
		return "promo"
	case StageLoyalty:
		return "loyalty"
	case StageMembership:
		return "membership"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// ErrDiscountOrder is returned when adjustments are not supplied in
// package, promo, loyalty, membership order.
var ErrDiscountOrder = errors.New("discounts must be applied in package, promo, loyalty, membership order")

// Adjustment is one discount to apply against the running subtotal.
type Adjustment struct {
	Stage Stage
	Kind  enums.AmountKind
	Value decimal.Decimal
	// Max caps the computed amount when set.
	Max *decimal.Decimal
}

// Applied is the outcome of ApplyDiscounts. Running[i] is the subtotal left
// after Adjustments[i].
type Applied struct {
	Amounts map[Stage]decimal.Decimal
	Running []decimal.Decimal
	Final   decimal.Decimal
}

// Amount returns the discount taken at stage, zero when the stage was absent.
func (a Applied) Amount(stage Stage) decimal.Decimal {
	if v, ok := a.Amounts[stage]; ok {
		return v
	}
	return decimal.Zero
}

// Total is the sum of every stage.
func (a Applied) Total() decimal.Decimal {
	total := decimal.Zero
	for _, v := range a.Amounts {
		total = total.Add(v)
	}
	return total
}

// ApplyDiscounts applies each adjustment against the subtotal left by the
// previous one. The running value never drops below zero.
func ApplyDiscounts(subtotal decimal.Decimal, adjustments []Adjustment) (Applied, error) {
	if subtotal.IsNegative() {
		return Applied{}, fmt.Errorf("subtotal must not be negative")
	}

	out := Applied{
		Amounts: make(map[Stage]decimal.Decimal, len(adjustments)),
		Running: make([]decimal.Decimal, 0, len(adjustments)),
		Final:   Round(subtotal),
	}

	var last Stage
	for _, adj := range adjustments {
		if adj.Stage <= last {
			return Applied{}, ErrDiscountOrder
		}
		last = adj.Stage
		if adj.Value.IsNegative() {
			return Applied{}, fmt.Errorf("%s discount must not be negative", adj.Stage)
		}

		amount, err := discountAmount(out.Final, adj)
		if err != nil {
			return Applied{}, err
		}
		out.Amounts[adj.Stage] = amount
		out.Final = out.Final.Sub(amount)
		out.Running = append(out.Running, out.Final)
	}
	return out, nil
}

func discountAmount(running decimal.Decimal, adj Adjustment) (decimal.Decimal, error) {
	var amount decimal.Decimal
	switch adj.Kind {
	case enums.AmountKindPercentage:
		amount = Round(running.Mul(adj.Value).Div(hundred))
	case enums.AmountKindFixed:
		amount = Round(adj.Value)
	default:
		return decimal.Zero, fmt.Errorf("%s discount has invalid kind %q", adj.Stage, adj.Kind)
	}
	if adj.Max != nil && amount.GreaterThan(*adj.Max) {
		amount = Round(*adj.Max)
	}
	if amount.GreaterThan(running) {
		amount = running
	}
	return amount, nil
}
