package enums

import "fmt"

// PaymentProvider identifies the hosted-payment-page gateway for an attempt.
type PaymentProvider string

const (
	ProviderPaylink  PaymentProvider = "paylink"
	ProviderOrbitpay PaymentProvider = "orbitpay"

	// ProviderEscrow labels escrow/payout rail events in the webhook
	// ledger. It is not a checkout gateway, so ParsePaymentProvider
	// rejects it.
	ProviderEscrow PaymentProvider = "escrow"
)

var validPaymentProviders = []PaymentProvider{
	ProviderPaylink,
	ProviderOrbitpay,
}

// String implements fmt.Stringer.
func (p PaymentProvider) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentProvider.
func (p PaymentProvider) IsValid() bool {
	for _, candidate := range validPaymentProviders {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentProvider converts raw input into a PaymentProvider.
func ParsePaymentProvider(value string) (PaymentProvider, error) {
	for _, candidate := range validPaymentProviders {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment provider %q", value)
}
