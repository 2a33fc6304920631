package enums

import "fmt"

// FundingSource tags which instrument satisfied part of a booking total.
type FundingSource string

const (
	FundingSourceGiftCard FundingSource = "gift_card"
	FundingSourceWallet   FundingSource = "wallet"
	FundingSourceMixed    FundingSource = "mixed"
	FundingSourceCard     FundingSource = "card"
)

var validFundingSources = []FundingSource{
	FundingSourceGiftCard,
	FundingSourceWallet,
	FundingSourceMixed,
	FundingSourceCard,
}

// String implements fmt.Stringer.
func (f FundingSource) String() string {
	return string(f)
}

// IsValid reports whether the value is a known FundingSource.
func (f FundingSource) IsValid() bool {
	for _, candidate := range validFundingSources {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseFundingSource converts raw input into a FundingSource.
func ParseFundingSource(value string) (FundingSource, error) {
	for _, candidate := range validFundingSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid funding source %q", value)
}
