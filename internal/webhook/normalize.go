package webhook

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"github.com/yourorg/payment-core/internal/adapter/paystack"
	"github.com/yourorg/payment-core/internal/domain"
	"github.com/yourorg/payment-core/internal/money"
)

// Parse normalizes a verified raw delivery into a WebhookEvent. A payload
// that cannot be decoded, or lacks the event or transaction identifier,
// fails with ValidationFailed.
func Parse(provider domain.Provider, header http.Header, body []byte) (domain.WebhookEvent, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.WebhookEvent{}, fmt.Errorf("webhook: malformed %s payload: %w", provider, domain.ErrValidationFailed)
	}

	var event domain.WebhookEvent
	var err error
	switch provider {
	case domain.ProviderPaystack:
		event, err = parsePaystack(payload)
	case domain.ProviderXendit:
		event, err = parseXendit(payload, header)
	case domain.ProviderBinance:
		event, err = parseBinance(payload)
	default:
		return domain.WebhookEvent{}, fmt.Errorf("webhook: provider %s does not deliver webhooks: %w", provider, domain.ErrValidationFailed)
	}
	if err != nil {
		return domain.WebhookEvent{}, err
	}

	event.Provider = provider
	event.RawPayload = body
	if event.EventID == "" || event.ProviderTransactionID == "" {
		return domain.WebhookEvent{}, fmt.Errorf("webhook: %s payload missing identifiers: %w", provider, domain.ErrValidationFailed)
	}
	return event, nil
}

// parsePaystack handles charge events. The transaction reference is the
// identifier handed out at initialization.
func parsePaystack(payload map[string]any) (domain.WebhookEvent, error) {
	data := cast.ToStringMap(payload["data"])
	return domain.WebhookEvent{
		EventID:               cast.ToString(data["id"]),
		ProviderTransactionID: cast.ToString(data["reference"]),
		ReportedStatus:        paystack.MapStatus(cast.ToString(data["status"])),
		AmountMinorUnits:      cast.ToInt64(data["amount"]), // already minor units
	}, nil
}

// parseXendit handles invoice callbacks. Amounts arrive in major units.
func parseXendit(payload map[string]any, header http.Header) (domain.WebhookEvent, error) {
	invoiceID := cast.ToString(payload["id"])
	status := strings.ToUpper(cast.ToString(payload["status"]))

	eventID := header.Get("webhook-id")
	if eventID == "" {
		eventID = invoiceID + ":" + status
	}
	currency := cast.ToString(payload["currency"])
	return domain.WebhookEvent{
		EventID:               eventID,
		ProviderTransactionID: invoiceID,
		ReportedStatus:        mapXenditStatus(status),
		AmountMinorUnits:      majorToMinor(payload["amount"], currency),
	}, nil
}

func mapXenditStatus(s string) domain.ReportedStatus {
	switch s {
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

// parseBinance handles order notifications. The data field is a nested
// JSON document serialized as a string.
func parseBinance(payload map[string]any) (domain.WebhookEvent, error) {
	var data map[string]any
	if raw := cast.ToString(payload["data"]); raw != "" {
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return domain.WebhookEvent{}, fmt.Errorf("webhook: binance data field: %w", domain.ErrValidationFailed)
		}
	}

	pid := cast.ToString(data["prepayId"])
	if pid == "" {
		pid = cast.ToString(data["merchantTradeNo"])
	}
	currency := cast.ToString(data["currency"])
	return domain.WebhookEvent{
		EventID:               cast.ToString(payload["bizId"]),
		ProviderTransactionID: pid,
		ReportedStatus:        mapBinanceStatus(cast.ToString(payload["bizStatus"])),
		AmountMinorUnits:      majorToMinor(data["totalFee"], currency),
	}, nil
}

func mapBinanceStatus(s string) domain.ReportedStatus {
	switch strings.ToUpper(s) {
	case "PAY_SUCCESS":
		return domain.ReportedPaid
	case "PAY_CLOSED":
		return domain.ReportedExpired
	default:
		return domain.ReportedFailed
	}
}

// majorToMinor converts a major-unit amount from a payload into minor
// units, returning 0 when the field is absent.
func majorToMinor(v any, currency string) int64 {
	f := cast.ToFloat64(v)
	if f == 0 {
		return 0
	}
	return decimal.NewFromFloat(f).Shift(money.Exponent(currency)).Round(0).IntPart()
}
