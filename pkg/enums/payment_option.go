package enums

import "fmt"

// PaymentOption is the customer's choice between paying a deposit or the full amount.
type PaymentOption string

const (
	PaymentOptionFull    PaymentOption = "full"
	PaymentOptionDeposit PaymentOption = "deposit"
)

var validPaymentOptions = []PaymentOption{
	PaymentOptionFull,
	PaymentOptionDeposit,
}

// String implements fmt.Stringer.
func (p PaymentOption) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentOption.
func (p PaymentOption) IsValid() bool {
	for _, candidate := range validPaymentOptions {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentOption converts raw input into a PaymentOption.
func ParsePaymentOption(value string) (PaymentOption, error) {
	for _, candidate := range validPaymentOptions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment option %q", value)
}
