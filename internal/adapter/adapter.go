// Package adapter defines the capability contract every payment provider
// implementation satisfies. Adapters translate a normalized intent into a
// provider-specific request over an injected HTTP client and map the
// provider's response into a common ProviderResult; they never touch the
// Transaction record themselves.
package adapter

import (
	"context"

	"github.com/yourorg/payment-core/internal/domain"
	"github.com/yourorg/payment-core/internal/money"
)

// Adapter is implemented by each payment provider integration.
//
// Initiate fails with *domain.ProviderRejectedError on a non-success
// provider decision, domain.ErrProviderUnavailable on network or timeout
// faults, and domain.ErrValidationFailed when the intent lacks fields the
// provider mandates.
type Adapter interface {
	Name() domain.Provider

	// SettlementMode tells the orchestrator whether final confirmation
	// arrives synchronously, via webhook, or via polling.
	SettlementMode() domain.SettlementMode

	Initiate(ctx context.Context, intent domain.PaymentIntent, amount money.Normalized) (domain.ProviderResult, error)

	QueryStatus(ctx context.Context, providerTransactionID string) (domain.ReportedStatus, error)
}

// Capturer is implemented by two-phase authorize/capture providers.
type Capturer interface {
	Capture(ctx context.Context, providerTransactionID string) (domain.ProviderResult, error)
}

// QuoteCommitter is implemented by quote-then-commit flows. Update and
// Commit must be called in order after Initiate, each with the identifier
// returned by the previous step; out-of-order calls fail with
// domain.ErrInvalidSequence.
type QuoteCommitter interface {
	Update(ctx context.Context, providerTransactionID string) (domain.ProviderResult, error)
	Commit(ctx context.Context, providerTransactionID string) (domain.ProviderResult, error)
}

// Registry maps providers to their adapters.
type Registry map[domain.Provider]Adapter

// Get looks up the adapter for a provider.
func (r Registry) Get(p domain.Provider) (Adapter, bool) {
	a, ok := r[p]
	return a, ok
}
