// Package moneygram implements the quote-then-commit adapter variant for
// cross-border remittance: Initiate obtains a quote, Update attaches the
// receiver details, Commit executes the transfer. The three steps must be
// called in order, each with the identifier returned by the previous
// step. Settlement is resolved by polling the status endpoint.
package moneygram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/yourorg/payment-core/internal/adapter"
	"github.com/yourorg/payment-core/internal/config"
	"github.com/yourorg/payment-core/internal/domain"
	"github.com/yourorg/payment-core/internal/money"
)

type stage int

const (
	stageQuoted stage = iota
	stageUpdated
	stageCommitted
)

var (
	_ adapter.Adapter        = (*Adapter)(nil)
	_ adapter.QuoteCommitter = (*Adapter)(nil)
)

// Adapter calls the MoneyGram transfer API.
type Adapter struct {
	httpClient *http.Client
	baseURL    string
	apiToken   string

	mu     sync.Mutex
	stages map[string]stage // transfer id -> protocol stage
}

// NewAdapter creates a MoneyGram adapter.
func NewAdapter(client *http.Client, cfg config.ProviderConfig) *Adapter {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Adapter{
		httpClient: client,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiToken:   cfg.APIKey,
		stages:     make(map[string]stage),
	}
}

func (a *Adapter) Name() domain.Provider { return domain.ProviderMoneyGram }

func (a *Adapter) SettlementMode() domain.SettlementMode { return domain.SettlePoll }

type quoteRequest struct {
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	SenderEmail  string `json:"senderEmail"`
	ReceiverName string `json:"receiverName"`
	Description  string `json:"description,omitempty"`
}

type transferResponse struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"transactionStatus"`
}

// Initiate requests a transfer quote.
func (a *Adapter) Initiate(ctx context.Context, intent domain.PaymentIntent, amount money.Normalized) (domain.ProviderResult, error) {
	if intent.PayerEmail == "" {
		return domain.ProviderResult{}, fmt.Errorf("moneygram: sender email is required: %w", domain.ErrValidationFailed)
	}
	receiver := intent.Metadata["receiverName"]
	if receiver == "" {
		return domain.ProviderResult{}, fmt.Errorf("moneygram: metadata.receiverName is required: %w", domain.ErrValidationFailed)
	}

	payload := quoteRequest{
		Amount:       money.MajorString(amount.MinorUnits, amount.Currency),
		Currency:     amount.Currency,
		SenderEmail:  intent.PayerEmail,
		ReceiverName: receiver,
		Description:  intent.Description,
	}
	body, raw, err := a.do(ctx, http.MethodPost, "/transfers/quote", payload)
	if err != nil {
		return domain.ProviderResult{}, err
	}

	var tr transferResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return domain.ProviderResult{}, fmt.Errorf("moneygram: decode quote response: %w", err)
	}

	a.mu.Lock()
	a.stages[tr.TransactionID] = stageQuoted
	a.mu.Unlock()

	return domain.ProviderResult{
		ProviderTransactionID: tr.TransactionID,
		Status:                domain.ReportedPending,
		RawProviderPayload:    raw,
	}, nil
}

// Update attaches receiver details to a quoted transfer. Must follow
// Initiate for the same transfer id.
func (a *Adapter) Update(ctx context.Context, providerTransactionID string) (domain.ProviderResult, error) {
	if err := a.advance(providerTransactionID, stageQuoted, stageUpdated); err != nil {
		return domain.ProviderResult{}, err
	}
	body, raw, err := a.do(ctx, http.MethodPut, "/transfers/"+providerTransactionID, nil)
	if err != nil {
		a.rewind(providerTransactionID, stageQuoted)
		return domain.ProviderResult{}, err
	}
	var tr transferResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return domain.ProviderResult{}, fmt.Errorf("moneygram: decode update response: %w", err)
	}
	return domain.ProviderResult{
		ProviderTransactionID: providerTransactionID,
		Status:                domain.ReportedPending,
		RawProviderPayload:    raw,
	}, nil
}

// Commit executes an updated transfer. Must follow Update for the same
// transfer id.
func (a *Adapter) Commit(ctx context.Context, providerTransactionID string) (domain.ProviderResult, error) {
	if err := a.advance(providerTransactionID, stageUpdated, stageCommitted); err != nil {
		return domain.ProviderResult{}, err
	}
	body, raw, err := a.do(ctx, http.MethodPut, "/transfers/"+providerTransactionID+"/commit", nil)
	if err != nil {
		a.rewind(providerTransactionID, stageUpdated)
		return domain.ProviderResult{}, err
	}
	var tr transferResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return domain.ProviderResult{}, fmt.Errorf("moneygram: decode commit response: %w", err)
	}
	return domain.ProviderResult{
		ProviderTransactionID: providerTransactionID,
		Status:                mapStatus(tr.Status),
		RawProviderPayload:    raw,
	}, nil
}

// QueryStatus polls the transfer status endpoint.
func (a *Adapter) QueryStatus(ctx context.Context, providerTransactionID string) (domain.ReportedStatus, error) {
	body, _, err := a.do(ctx, http.MethodGet, "/transfers/"+providerTransactionID+"/status", nil)
	if err != nil {
		return "", err
	}
	var tr transferResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("moneygram: decode status response: %w", err)
	}
	return mapStatus(tr.Status), nil
}

func (a *Adapter) advance(id string, from, to stage) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	current, ok := a.stages[id]
	if !ok || current != from {
		return fmt.Errorf("moneygram: transfer %s not in required step: %w", id, domain.ErrInvalidSequence)
	}
	a.stages[id] = to
	return nil
}

// rewind restores the previous stage when the provider call itself
// failed, so the step can be retried.
func (a *Adapter) rewind(id string, to stage) {
	a.mu.Lock()
	a.stages[id] = to
	a.mu.Unlock()
}

func mapStatus(s string) domain.ReportedStatus {
	switch strings.ToUpper(s) {
	case "SENT", "DELIVERED", "RECEIVED":
		return domain.ReportedPaid
	case "EXPIRED":
		return domain.ReportedExpired
	case "QUOTED", "UPDATED", "COMMITTED", "PENDING", "AVAILABLE":
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
			return nil, nil, fmt.Errorf("moneygram: encode request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("moneygram: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("moneygram: %v: %w", err, domain.ErrProviderUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("moneygram: read response: %w", domain.ErrProviderUnavailable)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, nil, fmt.Errorf("moneygram: HTTP %d: %w", resp.StatusCode, domain.ErrProviderUnavailable)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Code    string `json:"errorCode"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &apiErr)
		if apiErr.Code == "" {
			apiErr.Code = fmt.Sprintf("HTTP_%d", resp.StatusCode)
		}
		return nil, nil, &domain.ProviderRejectedError{
			Provider: domain.ProviderMoneyGram,
			Code:     apiErr.Code,
			Message:  apiErr.Message,
		}
	}
	return body, body, nil
}
