// Package paypal implements the direct-order-capture adapter variant: an
// order is created, the buyer approves it, and an explicit capture call
// settles synchronously. Token acquisition is handled by the PayPal SDK's
// OAuth client-credentials flow.
package paypal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	paypalsdk "github.com/plutov/paypal/v4"

	"github.com/yourorg/payment-core/internal/adapter"
	"github.com/yourorg/payment-core/internal/config"
	"github.com/yourorg/payment-core/internal/domain"
	"github.com/yourorg/payment-core/internal/money"
)

var (
	_ adapter.Adapter  = (*Adapter)(nil)
	_ adapter.Capturer = (*Adapter)(nil)
)

// Adapter drives PayPal orders through the plutov SDK.
type Adapter struct {
	client     *paypalsdk.Client
	successURL string
	failureURL string
}

// NewAdapter creates a PayPal adapter. The HTTP client, when non-nil,
// replaces the SDK's default so tests can point at a fake server.
func NewAdapter(httpClient *http.Client, cfg config.ProviderConfig) (*Adapter, error) {
	client, err := paypalsdk.NewClient(cfg.APIKey, cfg.APISecret, cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("paypal: create client: %w", err)
	}
	if httpClient != nil {
		client.Client = httpClient
	}
	return &Adapter{client: client, successURL: cfg.SuccessURL, failureURL: cfg.FailureURL}, nil
}

func (a *Adapter) Name() domain.Provider { return domain.ProviderPayPal }

func (a *Adapter) SettlementMode() domain.SettlementMode { return domain.SettleSync }

func (a *Adapter) ensureToken(ctx context.Context) error {
	if a.client.Token != nil {
		return nil
	}
	if _, err := a.client.GetAccessToken(ctx); err != nil {
		return fmt.Errorf("paypal: access token: %v: %w", err, domain.ErrProviderUnavailable)
	}
	return nil
}

// Initiate creates a CAPTURE-intent order and returns its approval URL.
func (a *Adapter) Initiate(ctx context.Context, intent domain.PaymentIntent, amount money.Normalized) (domain.ProviderResult, error) {
	if err := a.ensureToken(ctx); err != nil {
		return domain.ProviderResult{}, err
	}

	units := []paypalsdk.PurchaseUnitRequest{{
		ReferenceID: intent.ExternalReference,
		Amount: &paypalsdk.PurchaseUnitAmount{
			Currency: strings.ToUpper(amount.Currency),
			Value:    money.MajorString(amount.MinorUnits, amount.Currency),
		},
		Description: intent.Description,
		CustomID:    intent.PayerEmail,
	}}
	var appCtx *paypalsdk.ApplicationContext
	if a.successURL != "" || a.failureURL != "" {
		appCtx = &paypalsdk.ApplicationContext{ReturnURL: a.successURL, CancelURL: a.failureURL}
	}

	order, err := a.client.CreateOrder(ctx, paypalsdk.OrderIntentCapture, units, nil, appCtx)
	if err != nil {
		return domain.ProviderResult{}, a.mapError("create order", err)
	}

	approvalURL := ""
	for _, link := range order.Links {
		if link.Rel == "approve" {
			approvalURL = link.Href
			break
		}
	}
	if approvalURL == "" {
		return domain.ProviderResult{}, fmt.Errorf("paypal: order %s has no approval link: %w", order.ID, domain.ErrProviderUnavailable)
	}

	return domain.ProviderResult{
		ProviderTransactionID: order.ID,
		RedirectURL:           approvalURL,
		Status:                mapOrderStatus(order.Status),
	}, nil
}

// Capture settles an approved order. This is the explicit follow-up to
// the buyer's approval redirect.
func (a *Adapter) Capture(ctx context.Context, providerTransactionID string) (domain.ProviderResult, error) {
	if err := a.ensureToken(ctx); err != nil {
		return domain.ProviderResult{}, err
	}

	order, err := a.client.GetOrder(ctx, providerTransactionID)
	if err != nil {
		return domain.ProviderResult{}, a.mapError("get order", err)
	}
	if order.Status != "APPROVED" && order.Status != "COMPLETED" {
		return domain.ProviderResult{}, &domain.ProviderRejectedError{
			Provider: domain.ProviderPayPal,
			Code:     "ORDER_NOT_APPROVED",
			Message:  fmt.Sprintf("order %s is %s, buyer approval pending", providerTransactionID, order.Status),
		}
	}

	capture, err := a.client.CaptureOrder(ctx, providerTransactionID, paypalsdk.CaptureOrderRequest{})
	if err != nil {
		return domain.ProviderResult{}, a.mapError("capture order", err)
	}
	return domain.ProviderResult{
		ProviderTransactionID: providerTransactionID,
		Status:                mapOrderStatus(string(capture.Status)),
	}, nil
}

// QueryStatus reads the order and maps its status.
func (a *Adapter) QueryStatus(ctx context.Context, providerTransactionID string) (domain.ReportedStatus, error) {
	if err := a.ensureToken(ctx); err != nil {
		return "", err
	}
	order, err := a.client.GetOrder(ctx, providerTransactionID)
	if err != nil {
		return "", a.mapError("get order", err)
	}
	return mapOrderStatus(order.Status), nil
}

func mapOrderStatus(s string) domain.ReportedStatus {
	switch strings.ToUpper(s) {
	case "COMPLETED":
		return domain.ReportedPaid
	case "APPROVED":
		return domain.ReportedAuthorized
	case "CREATED", "PAYER_ACTION_REQUIRED", "SAVED":
		return domain.ReportedPending
	default:
		return domain.ReportedFailed
	}
}

func (a *Adapter) mapError(op string, err error) error {
	var apiErr *paypalsdk.ErrorResponse
	if errors.As(err, &apiErr) {
		if apiErr.Response != nil && apiErr.Response.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("paypal: %s: HTTP %d: %w", op, apiErr.Response.StatusCode, domain.ErrProviderUnavailable)
		}
		return &domain.ProviderRejectedError{
			Provider: domain.ProviderPayPal,
			Code:     apiErr.Name,
			Message:  apiErr.Message,
		}
	}
	return fmt.Errorf("paypal: %s: %v: %w", op, err, domain.ErrProviderUnavailable)
}
