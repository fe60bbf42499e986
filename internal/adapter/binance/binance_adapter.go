// Package binance implements a crypto checkout adapter over the Binance
// Pay API. Every request is signed with HMAC-SHA512 over the
// timestamp/nonce/body payload; final settlement is resolved by polling
// the order-query endpoint.
package binance

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/payment-core/internal/adapter"
	"github.com/yourorg/payment-core/internal/config"
	"github.com/yourorg/payment-core/internal/domain"
	"github.com/yourorg/payment-core/internal/money"
)

var _ adapter.Adapter = (*Adapter)(nil)

// Adapter calls the Binance Pay order API.
type Adapter struct {
	httpClient    *http.Client
	baseURL       string
	certificateSN string
	apiSecret     string
	now           func() time.Time
}

// NewAdapter creates a Binance Pay adapter.
func NewAdapter(client *http.Client, cfg config.ProviderConfig) *Adapter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Adapter{
		httpClient:    client,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		certificateSN: cfg.APIKey,
		apiSecret:     cfg.APISecret,
		now:           time.Now,
	}
}

func (a *Adapter) Name() domain.Provider { return domain.ProviderBinance }

func (a *Adapter) SettlementMode() domain.SettlementMode { return domain.SettlePoll }

type goods struct {
	GoodsType        string `json:"goodsType"`
	GoodsCategory    string `json:"goodsCategory"`
	ReferenceGoodsID string `json:"referenceGoodsId"`
	GoodsName        string `json:"goodsName"`
}

type orderRequest struct {
	MerchantTradeNo string `json:"merchantTradeNo"`
	OrderAmount     string `json:"orderAmount"`
	Currency        string `json:"currency"`
	Goods           goods  `json:"goods"`
}

type apiEnvelope struct {
	Status       string          `json:"status"`
	Code         string          `json:"code"`
	ErrorMessage string          `json:"errorMessage"`
	Data         json.RawMessage `json:"data"`
}

type orderData struct {
	PrepayID    string `json:"prepayId"`
	CheckoutURL string `json:"checkoutUrl"`
	Status      string `json:"status"`
}

// Initiate creates a pay order and returns its checkout URL.
func (a *Adapter) Initiate(ctx context.Context, intent domain.PaymentIntent, amount money.Normalized) (domain.ProviderResult, error) {
	name := intent.Description
	if name == "" {
		name = "Order " + intent.ExternalReference
	}
	payload := orderRequest{
		MerchantTradeNo: intent.ExternalReference,
		OrderAmount:     money.MajorString(amount.MinorUnits, amount.Currency),
		Currency:        amount.Currency,
		Goods: goods{
			GoodsType:        "01",
			GoodsCategory:    "D000",
			ReferenceGoodsID: intent.ExternalReference,
			GoodsName:        name,
		},
	}
	env, raw, err := a.do(ctx, "/binancepay/openapi/v2/order", payload)
	if err != nil {
		return domain.ProviderResult{}, err
	}

	var data orderData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return domain.ProviderResult{}, fmt.Errorf("binance: decode order response: %w", err)
	}
	return domain.ProviderResult{
		ProviderTransactionID: data.PrepayID,
		RedirectURL:           data.CheckoutURL,
		Status:                domain.ReportedPending,
		RawProviderPayload:    raw,
	}, nil
}

// QueryStatus polls the order-query endpoint by prepay id.
func (a *Adapter) QueryStatus(ctx context.Context, providerTransactionID string) (domain.ReportedStatus, error) {
	env, _, err := a.do(ctx, "/binancepay/openapi/v2/order/query", map[string]string{"prepayId": providerTransactionID})
	if err != nil {
		return "", err
	}
	var data orderData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", fmt.Errorf("binance: decode query response: %w", err)
	}
	return mapStatus(data.Status), nil
}

func mapStatus(s string) domain.ReportedStatus {
	switch strings.ToUpper(s) {
	case "PAID", "SUCCESS":
		return domain.ReportedPaid
	case "EXPIRED":
		return domain.ReportedExpired
	case "INITIAL", "PENDING", "PROCESS":
		return domain.ReportedPending
	default:
		return domain.ReportedFailed
	}
}

// Sign computes the Binance Pay request signature over
// timestamp\nnonce\nbody\n using HMAC-SHA512.
func Sign(secret, timestamp, nonce string, body []byte) string {
	payload := timestamp + "\n" + nonce + "\n" + string(body) + "\n"
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *Adapter) do(ctx context.Context, path string, payload any) (apiEnvelope, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return apiEnvelope{}, nil, fmt.Errorf("binance: encode request: %w", err)
	}

	timestamp := strconv.FormatInt(a.now().UnixMilli(), 10)
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return apiEnvelope{}, nil, fmt.Errorf("binance: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("BinancePay-Timestamp", timestamp)
	req.Header.Set("BinancePay-Nonce", nonce)
	req.Header.Set("BinancePay-Certificate-SN", a.certificateSN)
	req.Header.Set("BinancePay-Signature", Sign(a.apiSecret, timestamp, nonce, raw))

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return apiEnvelope{}, nil, fmt.Errorf("binance: %v: %w", err, domain.ErrProviderUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apiEnvelope{}, nil, fmt.Errorf("binance: read response: %w", domain.ErrProviderUnavailable)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return apiEnvelope{}, nil, fmt.Errorf("binance: HTTP %d: %w", resp.StatusCode, domain.ErrProviderUnavailable)
	}

	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return apiEnvelope{}, nil, fmt.Errorf("binance: decode response: %w", err)
	}
	if env.Status != "SUCCESS" {
		return apiEnvelope{}, nil, &domain.ProviderRejectedError{
			Provider: domain.ProviderBinance,
			Code:     env.Code,
			Message:  env.ErrorMessage,
		}
	}
	return env, body, nil
}
