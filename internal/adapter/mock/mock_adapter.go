// Package mock provides a configurable in-memory adapter for testing.
package mock

import (
	"context"

	"github.com/google/uuid"

	"github.com/yourorg/payment-core/internal/adapter"
	"github.com/yourorg/payment-core/internal/domain"
	"github.com/yourorg/payment-core/internal/money"
)

var (
	_ adapter.Adapter  = (*Adapter)(nil)
	_ adapter.Capturer = (*Adapter)(nil)
)

// Adapter is a mock implementation of the provider adapter interfaces.
// Each method calls the matching Func field when set, otherwise returns a
// default successful result.
type Adapter struct {
	Provider domain.Provider
	Mode     domain.SettlementMode

	InitiateFunc    func(ctx context.Context, intent domain.PaymentIntent, amount money.Normalized) (domain.ProviderResult, error)
	QueryStatusFunc func(ctx context.Context, providerTransactionID string) (domain.ReportedStatus, error)
	CaptureFunc     func(ctx context.Context, providerTransactionID string) (domain.ProviderResult, error)
}

// NewAdapter creates a mock adapter for the given provider name.
func NewAdapter(provider domain.Provider, mode domain.SettlementMode) *Adapter {
	return &Adapter{Provider: provider, Mode: mode}
}

func (m *Adapter) Name() domain.Provider { return m.Provider }

func (m *Adapter) SettlementMode() domain.SettlementMode { return m.Mode }

func (m *Adapter) Initiate(ctx context.Context, intent domain.PaymentIntent, amount money.Normalized) (domain.ProviderResult, error) {
	if m.InitiateFunc != nil {
		return m.InitiateFunc(ctx, intent, amount)
	}
	return domain.ProviderResult{
		ProviderTransactionID: uuid.NewString(),
		Status:                domain.ReportedPending,
	}, nil
}

func (m *Adapter) QueryStatus(ctx context.Context, providerTransactionID string) (domain.ReportedStatus, error) {
	if m.QueryStatusFunc != nil {
		return m.QueryStatusFunc(ctx, providerTransactionID)
	}
	return domain.ReportedPending, nil
}

func (m *Adapter) Capture(ctx context.Context, providerTransactionID string) (domain.ProviderResult, error) {
	if m.CaptureFunc != nil {
		return m.CaptureFunc(ctx, providerTransactionID)
	}
	return domain.ProviderResult{
		ProviderTransactionID: providerTransactionID,
		Status:                domain.ReportedPaid,
	}, nil
}
