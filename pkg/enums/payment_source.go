package enums

import "fmt"

// PaymentSource identifies which processor a payment came from.
type PaymentSource string

const (
	PaymentSourceStripe PaymentSource = "stripe"
	PaymentSourceSquare PaymentSource = "square"
)

var validPaymentSources = []PaymentSource{
	PaymentSourceStripe,
	PaymentSourceSquare,
}

// String implements fmt.Stringer.
func (p PaymentSource) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentSource.
func (p PaymentSource) IsValid() bool {
	for _, candidate := range validPaymentSources {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentSource converts raw input into a PaymentSource.
func ParsePaymentSource(value string) (PaymentSource, error) {
	for _, candidate := range validPaymentSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment source %q", value)
}
