// Package domain holds the provider-agnostic types shared by the
// orchestration core: payment intents, provider results, webhook events
// and the error taxonomy surfaced to callers.
package domain

import "strings"

// Provider identifies an external payment system.
type Provider string

const (
	ProviderXendit    Provider = "xendit"
	ProviderPaystack  Provider = "paystack"
	ProviderPayPal    Provider = "paypal"
	ProviderMoneyGram Provider = "moneygram"
	ProviderBinance   Provider = "binance"
)

// ParseProvider maps a request string onto a known Provider.
func ParseProvider(s string) (Provider, bool) {
	switch Provider(strings.ToLower(strings.TrimSpace(s))) {
	case ProviderXendit:
		return ProviderXendit, true
	case ProviderPaystack:
		return ProviderPaystack, true
	case ProviderPayPal:
		return ProviderPayPal, true
	case ProviderMoneyGram:
		return ProviderMoneyGram, true
	case ProviderBinance:
		return ProviderBinance, true
	}
	return "", false
}

// SettlementMode describes how a provider reports final payment confirmation.
type SettlementMode int

const (
	// SettleSync means the provider returns the final status on capture.
	SettleSync SettlementMode = iota
	// SettleWebhook means the final status only arrives via webhook.
	SettleWebhook
	// SettlePoll means the caller must query the provider's status endpoint.
	SettlePoll
)

func (m SettlementMode) String() string {
	switch m {
	case SettleSync:
		return "sync"
	case SettleWebhook:
		return "webhook"
	case SettlePoll:
		return "poll"
	}
	return "unknown"
}

// PaymentIntent is the caller's request to begin a payment. It is
// immutable once created; the orchestrator fills ExternalReference when
// the caller did not supply one.
type PaymentIntent struct {
	Amount            string            `json:"amount"` // decimal string, e.g. "12.34"
	Currency          string            `json:"currency"`
	PayerEmail        string            `json:"payerEmail"`
	Description       string            `json:"description"`
	Provider          Provider          `json:"provider"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	ExternalReference string            `json:"externalReference,omitempty"`
}

// ReportedStatus is a provider-reported payment status mapped into the
// core's vocabulary.
type ReportedStatus string

const (
	ReportedPending    ReportedStatus = "PENDING"
	ReportedAuthorized ReportedStatus = "AUTHORIZED"
	ReportedPaid       ReportedStatus = "PAID"
	ReportedFailed     ReportedStatus = "FAILED"
	ReportedExpired    ReportedStatus = "EXPIRED"
)

// ProviderResult is the normalized outcome of an adapter call.
// RedirectURL and ClientActionToken are mutually exclusive: a flow either
// needs a browser redirect or a client-side SDK action, never both.
type ProviderResult struct {
	ProviderTransactionID string
	RedirectURL           string
	ClientActionToken     string
	Status                ReportedStatus
	RawProviderPayload    []byte // retained for audit/debugging only
}

// ActionKind tells the caller how to complete the flow after createPayment.
type ActionKind string

const (
	ActionRedirect     ActionKind = "redirect"
	ActionClientAction ActionKind = "clientAction"
	ActionNone         ActionKind = "none"
)

// Action is the follow-up the caller must perform, derived from the
// ProviderResult.
type Action struct {
	Kind  ActionKind `json:"kind"`
	URL   string     `json:"url,omitempty"`
	Token string     `json:"token,omitempty"`
}

// WebhookEvent is a verified, normalized asynchronous event from a provider.
type WebhookEvent struct {
	Provider              Provider
	EventID               string
	ProviderTransactionID string
	ReportedStatus        ReportedStatus
	AmountMinorUnits      int64 // 0 when the provider does not report an amount
	RawPayload            []byte
}
