package enums

import "fmt"

// FinanceTransactionType classifies rows in finance_transactions.
type FinanceTransactionType string

const (
	FinanceTransactionTypePayment          FinanceTransactionType = "payment"
	FinanceTransactionTypeProviderEarnings FinanceTransactionType = "provider_earnings"
	FinanceTransactionTypeServiceFee       FinanceTransactionType = "service_fee"
	FinanceTransactionTypeTip              FinanceTransactionType = "tip"
	FinanceTransactionTypeTax              FinanceTransactionType = "tax"
	FinanceTransactionTypeTravelFee        FinanceTransactionType = "travel_fee"
)

var validFinanceTransactionTypes = []FinanceTransactionType{
	FinanceTransactionTypePayment,
	FinanceTransactionTypeProviderEarnings,
	FinanceTransactionTypeServiceFee,
	FinanceTransactionTypeTip,
	FinanceTransactionTypeTax,
	FinanceTransactionTypeTravelFee,
}

// String implements fmt.Stringer.
func (f FinanceTransactionType) String() string {
	return string(f)
}

// IsValid reports whether the value is a known FinanceTransactionType.
func (f FinanceTransactionType) IsValid() bool {
	for _, candidate := range validFinanceTransactionTypes {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseFinanceTransactionType converts raw input into a FinanceTransactionType.
func ParseFinanceTransactionType(value string) (FinanceTransactionType, error) {
	for _, candidate := range validFinanceTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid finance transaction type %q", value)
}
