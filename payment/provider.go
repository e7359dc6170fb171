package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrAmountMismatch signals the charged amount disagrees with the agreed
	// price after normalising through the stored exchange rate.
	ErrAmountMismatch = errors.New("payment: amount does not match agreed price")
	// ErrPaymentNotSuccessful signals the provider reported a non-success charge.
	ErrPaymentNotSuccessful = errors.New("payment: charge not successful")
	// ErrProviderUnavailable signals a timeout or network failure talking to
	// the provider. Retryable with the same reference; never re-charge.
	ErrProviderUnavailable = errors.New("payment: provider unavailable")
	// ErrUnknownProvider signals the requested payment method has no backend.
	ErrUnknownProvider = errors.New("payment: unknown provider")
	// ErrNotFound signals no payment record exists for the identifier.
	ErrNotFound = errors.New("payment: not found")
)

// InitializeChargeParams is the uniform initialize contract across backends.
type InitializeChargeParams struct {
	Reference     string
	AmountMinor   int64
	Currency      string
	CustomerEmail string
	CallbackURL   string
	Metadata      map[string]any
}

// ChargeHandle is what a backend returns from charge initialisation: enough
// for the client to complete payment, nothing more.
type ChargeHandle struct {
	Reference        string
	AuthorizationURL string
	AccessCode       string
}

// ChargeStatus is the provider-reported outcome of a charge.
type ChargeStatus struct {
	Reference   string
	Success     bool
	Status      string
	AmountMinor int64
	Currency    string
	PaidAt      time.Time
}

// Provider is the uniform contract the settlement engine requires from every
// payment backend.
type Provider interface {
	Name() string
	InitializeCharge(ctx context.Context, params InitializeChargeParams) (ChargeHandle, error)
	VerifyCharge(ctx context.Context, reference string) (ChargeStatus, error)
}

// Registry selects a provider backend per request.
type Registry struct {
	providers map[string]Provider
	fallback  string
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for i, p := range providers {
		name := strings.ToLower(p.Name())
		r.providers[name] = p
		if i == 0 {
			r.fallback = name
		}
	}
	return r
}

// Get resolves a provider by name; an empty name selects the default backend.
func (r *Registry) Get(name string) (Provider, error) {
	if name == "" {
		name = r.fallback
	}
	p, ok := r.providers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}
