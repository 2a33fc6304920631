package enums

import "fmt"

// AmountKind says whether a discount or fee value is a percentage or a fixed amount.
type AmountKind string

const (
	AmountKindPercentage AmountKind = "percentage"
	AmountKindFixed      AmountKind = "fixed"
)

var validAmountKinds = []AmountKind{
	AmountKindPercentage,
	AmountKindFixed,
}

// String implements fmt.Stringer.
func (a AmountKind) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AmountKind.
func (a AmountKind) IsValid() bool {
	for _, candidate := range validAmountKinds {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAmountKind converts raw input into a AmountKind.
func ParseAmountKind(value string) (AmountKind, error) {
	for _, candidate := range validAmountKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid amount kind %q", value)
}
