// Package paystack implements the client-tokenized adapter variant: the
// transaction is initialized server-side and the returned access code is
// handed to the client SDK, which drives the buyer through payment.
// Settlement is reported by the charge webhook.
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yourorg/payment-core/internal/adapter"
	"github.com/yourorg/payment-core/internal/config"
	"github.com/yourorg/payment-core/internal/domain"
	"github.com/yourorg/payment-core/internal/money"
)

var _ adapter.Adapter = (*Adapter)(nil)

// Adapter calls the Paystack transaction API.
type Adapter struct {
	httpClient *http.Client
	baseURL    string
	secretKey  string
}

// NewAdapter creates a Paystack adapter.
func NewAdapter(client *http.Client, cfg config.ProviderConfig) *Adapter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Adapter{
		httpClient: client,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:  cfg.APIKey,
	}
}

func (a *Adapter) Name() domain.Provider { return domain.ProviderPaystack }

func (a *Adapter) SettlementMode() domain.SettlementMode { return domain.SettleWebhook }

type initializeRequest struct {
	Email     string            `json:"email"`
	Amount    int64             `json:"amount"` // minor units (kobo/pesewas)
	Currency  string            `json:"currency"`
	Reference string            `json:"reference"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type apiEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type verifyData struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
}

// Initiate initializes a transaction and returns the access code the
// client SDK needs.
func (a *Adapter) Initiate(ctx context.Context, intent domain.PaymentIntent, amount money.Normalized) (domain.ProviderResult, error) {
	if intent.PayerEmail == "" {
		return domain.ProviderResult{}, fmt.Errorf("paystack: payer email is required: %w", domain.ErrValidationFailed)
	}

	payload := initializeRequest{
		Email:     intent.PayerEmail,
		Amount:    amount.MinorUnits,
		Currency:  amount.Currency,
		Reference: intent.ExternalReference,
		Metadata:  intent.Metadata,
	}
	env, raw, err := a.do(ctx, http.MethodPost, "/transaction/initialize", payload)
	if err != nil {
		return domain.ProviderResult{}, err
	}

	var data initializeData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return domain.ProviderResult{}, fmt.Errorf("paystack: decode initialize response: %w", err)
	}
	return domain.ProviderResult{
		ProviderTransactionID: data.Reference,
		ClientActionToken:     data.AccessCode,
		Status:                domain.ReportedPending,
		RawProviderPayload:    raw,
	}, nil
}

// QueryStatus verifies a transaction by its reference.
func (a *Adapter) QueryStatus(ctx context.Context, providerTransactionID string) (domain.ReportedStatus, error) {
	env, _, err := a.do(ctx, http.MethodGet, "/transaction/verify/"+providerTransactionID, nil)
	if err != nil {
		return "", err
	}
	var data verifyData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", fmt.Errorf("paystack: decode verify response: %w", err)
	}
	return MapStatus(data.Status), nil
}

// MapStatus translates a Paystack charge status into the core vocabulary.
// Shared with the webhook normalizer.
func MapStatus(s string) domain.ReportedStatus {
	switch strings.ToLower(s) {
	case "success":
		return domain.ReportedPaid
	case "abandoned":
		return domain.ReportedExpired
	case "pending", "ongoing", "queued":
		return domain.ReportedPending
	default:
		return domain.ReportedFailed
	}
}

func (a *Adapter) do(ctx context.Context, method, path string, payload any) (apiEnvelope, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return apiEnvelope{}, nil, fmt.Errorf("paystack: encode request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reqBody)
	if err != nil {
		return apiEnvelope{}, nil, fmt.Errorf("paystack: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return apiEnvelope{}, nil, fmt.Errorf("paystack: %v: %w", err, domain.ErrProviderUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apiEnvelope{}, nil, fmt.Errorf("paystack: read response: %w", domain.ErrProviderUnavailable)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return apiEnvelope{}, nil, fmt.Errorf("paystack: HTTP %d: %w", resp.StatusCode, domain.ErrProviderUnavailable)
	}

	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return apiEnvelope{}, nil, fmt.Errorf("paystack: decode response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest || !env.Status {
		return apiEnvelope{}, nil, &domain.ProviderRejectedError{
			Provider: domain.ProviderPaystack,
			Code:     fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message:  env.Message,
		}
	}
	return env, body, nil
}
