// Package xendit implements the redirect-checkout adapter variant: an
// invoice is created server-side, the buyer completes payment at the
// returned invoice URL, and final settlement arrives via webhook.
package xendit

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

// Adapter calls the Xendit invoice API.
type Adapter struct {
	httpClient *http.Client
	baseURL    string
	secretKey  string
	successURL string
	failureURL string
}

// NewAdapter creates a Xendit adapter. A nil client gets a default with a
// 10 second timeout.
func NewAdapter(client *http.Client, cfg config.ProviderConfig) *Adapter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Adapter{
		httpClient: client,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:  cfg.APIKey,
		successURL: cfg.SuccessURL,
		failureURL: cfg.FailureURL,
	}
}

func (a *Adapter) Name() domain.Provider { return domain.ProviderXendit }

func (a *Adapter) SettlementMode() domain.SettlementMode { return domain.SettleWebhook }

type invoiceRequest struct {
	ExternalID         string  `json:"external_id"`
	Amount             float64 `json:"amount"`
	Currency           string  `json:"currency"`
	PayerEmail         string  `json:"payer_email"`
	Description        string  `json:"description,omitempty"`
	SuccessRedirectURL string  `json:"success_redirect_url,omitempty"`
	FailureRedirectURL string  `json:"failure_redirect_url,omitempty"`
}

type invoiceResponse struct {
	ID         string `json:"id"`
	InvoiceURL string `json:"invoice_url"`
	Status     string `json:"status"`
}

type errorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// Initiate creates an invoice and returns its redirect URL.
func (a *Adapter) Initiate(ctx context.Context, intent domain.PaymentIntent, amount money.Normalized) (domain.ProviderResult, error) {
	if intent.PayerEmail == "" {
		return domain.ProviderResult{}, fmt.Errorf("xendit: payer email is required: %w", domain.ErrValidationFailed)
	}

	payload := invoiceRequest{
		ExternalID:         intent.ExternalReference,
		Amount:             money.FromMinorUnits(amount.MinorUnits, amount.Currency).InexactFloat64(),
		Currency:           amount.Currency,
		PayerEmail:         intent.PayerEmail,
		Description:        intent.Description,
		SuccessRedirectURL: a.successURL,
		FailureRedirectURL: a.failureURL,
	}
	body, raw, err := a.do(ctx, http.MethodPost, "/v2/invoices", payload)
	if err != nil {
		return domain.ProviderResult{}, err
	}

	var inv invoiceResponse
	if err := json.Unmarshal(body, &inv); err != nil {
		return domain.ProviderResult{}, fmt.Errorf("xendit: decode invoice response: %w", err)
	}
	return domain.ProviderResult{
		ProviderTransactionID: inv.ID,
		RedirectURL:           inv.InvoiceURL,
		Status:                mapStatus(inv.Status),
		RawProviderPayload:    raw,
	}, nil
}

// QueryStatus fetches the invoice and maps its status.
func (a *Adapter) QueryStatus(ctx context.Context, providerTransactionID string) (domain.ReportedStatus, error) {
	body, _, err := a.do(ctx, http.MethodGet, "/v2/invoices/"+providerTransactionID, nil)
	if err != nil {
		return "", err
	}
	var inv invoiceResponse
	if err := json.Unmarshal(body, &inv); err != nil {
		return "", fmt.Errorf("xendit: decode status response: %w", err)
	}
	return mapStatus(inv.Status), nil
}

func mapStatus(s string) domain.ReportedStatus {
	switch strings.ToUpper(s) {
	case "PAID", "SETTLED":
		return domain.ReportedPaid
	case "EXPIRED":
		return domain.ReportedExpired
	case "PENDING":
		return domain.ReportedPending
	default:
		return domain.ReportedFailed
	}
}

func (a *Adapter) do(ctx context.Context, method, path string, payload any) ([]byte, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("xendit: encode request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("xendit: build request: %w", err)
	}
	// Xendit authenticates with HTTP Basic: secret key as the username,
	// empty password.
	req.SetBasicAuth(a.secretKey, "")
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("xendit: %v: %w", err, domain.ErrProviderUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("xendit: read response: %w", domain.ErrProviderUnavailable)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, nil, fmt.Errorf("xendit: HTTP %d: %w", resp.StatusCode, domain.ErrProviderUnavailable)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr errorResponse
		_ = json.Unmarshal(body, &apiErr)
		if apiErr.ErrorCode == "" {
			apiErr.ErrorCode = fmt.Sprintf("HTTP_%d", resp.StatusCode)
		}
		return nil, nil, &domain.ProviderRejectedError{
			Provider: domain.ProviderXendit,
			Code:     apiErr.ErrorCode,
			Message:  apiErr.Message,
		}
	}
	return body, body, nil
}
