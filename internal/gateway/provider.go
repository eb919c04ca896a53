package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/luisorozco/mercaflow-backend/pkg/enums"
)

// SessionRequest carries what a provider needs to open a hosted checkout.
// MerchantReference is unique per attempt; OrderReference identifies the
// order across attempts.
type SessionRequest struct {
	OrderReference    string
	MerchantReference string
	AmountCents       int64
	Currency          enums.Currency
	CustomerEmail     string
	RedirectURL       string
}

// Session is the provider-issued checkout handle the caller redirects to.
// RawResponse is the provider's response body, kept verbatim for audit.
type Session struct {
	ProviderSessionID string
	CheckoutURL       string
	RawResponse       json.RawMessage
}

// Provider opens hosted checkout sessions with an external payment service.
type Provider interface {
	Name() enums.PaymentProvider
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
}

// Registry maps provider names to configured clients.
type Registry struct {
	providers map[enums.PaymentProvider]Provider
}

// NewRegistry indexes the given providers by name.
func NewRegistry(providers ...Provider) *Registry {
	indexed := make(map[enums.PaymentProvider]Provider, len(providers))
	for _, p := range providers {
		if p != nil {
			indexed[p.Name()] = p
		}
	}
	return &Registry{providers: indexed}
}

// Provider returns the client registered under the given name.
func (r *Registry) Provider(name enums.PaymentProvider) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("payment provider %q not configured", name)
	}
	return p, nil
}

func validateSessionRequest(req SessionRequest) error {
	if req.OrderReference == "" {
		return fmt.Errorf("order reference is required")
	}
	if req.MerchantReference == "" {
		return fmt.Errorf("merchant reference is required")
	}
	if req.AmountCents <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	if !req.Currency.IsValid() {
		return fmt.Errorf("invalid currency %q", req.Currency)
	}
	return nil
}
