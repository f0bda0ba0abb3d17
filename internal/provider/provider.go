// Package provider abstracts the external payment provider behind a
// small polling interface. The wallet core never depends on
// provider-specific response shapes beyond "was this label paid".
package provider

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/kramwallet/backend/internal/config"
)

// PaymentProvider is selected once at startup. The deposit lifecycle
// and the reconciliation worker depend only on this interface, never on
// which variant is active.
type PaymentProvider interface {
	// Live reports whether an external provider is configured. When
	// false, deposits are credited directly without confirmation.
	Live() bool

	// PaymentURL builds the redirect the payer opens out-of-band. Pure
	// function of its inputs; performs no I/O.
	PaymentURL(userID int64, amount decimal.Decimal, label string) string

	// FindSuccessfulOperation reports whether the provider has recorded
	// a successful payment for the given label.
	FindSuccessfulOperation(ctx context.Context, label string) (bool, error)
}

// FromConfig picks the provider variant: live quickpay polling when a
// receiver and token are configured, direct credit otherwise.
func FromConfig(cfg config.ProviderConfig) PaymentProvider {
	if cfg.Live() {
		return NewQuickpayProvider(cfg.Receiver, cfg.AccessToken)
	}
	return DirectProvider{}
}

// DirectProvider is the no-op variant: no redirect, no confirmations.
// Deposits created against it are credited immediately.
type DirectProvider struct{}

func (DirectProvider) Live() bool { return false }

func (DirectProvider) PaymentURL(int64, decimal.Decimal, string) string { return "" }

func (DirectProvider) FindSuccessfulOperation(context.Context, string) (bool, error) {
	return false, nil
}
