package paypal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/payment-core/internal/config"
	"github.com/yourorg/payment-core/internal/domain"
	"github.com/yourorg/payment-core/internal/money"
)

// fakePayPal serves the token endpoint plus a configurable orders API.
func fakePayPal(t *testing.T, orders http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "A21AAF-token",
			"token_type":   "Bearer",
			"expires_in":   32400,
		})
	})
	mux.HandleFunc("/v2/checkout/orders/", orders)
	mux.HandleFunc("/v2/checkout/orders", orders)
	return httptest.NewServer(mux)
}

func newTestAdapter(t *testing.T, server *httptest.Server) *Adapter {
	t.Helper()
	a, err := NewAdapter(server.Client(), config.ProviderConfig{
		BaseURL:    server.URL,
		APIKey:     "client-id",
		APISecret:  "client-secret",
		SuccessURL: "https://shop.test/return",
		FailureURL: "https://shop.test/cancel",
	})
	require.NoError(t, err)
	return a
}

func TestInitiate_CreatesOrderWithApprovalLink(t *testing.T) {
	server := fakePayPal(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "CAPTURE", req["intent"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "ORDER-9",
			"status": "CREATED",
			"links": []map[string]string{
				{"rel": "self", "href": server_url(r) + "/v2/checkout/orders/ORDER-9"},
				{"rel": "approve", "href": "https://www.sandbox.paypal.com/checkoutnow?token=ORDER-9"},
			},
		})
	})
	defer server.Close()

	a := newTestAdapter(t, server)
	intent := domain.PaymentIntent{
		Provider:          domain.ProviderPayPal,
		PayerEmail:        "buyer@example.com",
		Description:       "Family package",
		ExternalReference: "ord-9",
	}
	res, err := a.Initiate(context.Background(), intent, money.Normalized{MinorUnits: 2500, Currency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, "ORDER-9", res.ProviderTransactionID)
	assert.Contains(t, res.RedirectURL, "checkoutnow?token=ORDER-9")
	assert.Equal(t, domain.ReportedPending, res.Status)
}

func server_url(r *http.Request) string { return "http://" + r.Host }

func TestCapture_ApprovedOrderCompletes(t *testing.T) {
	server := fakePayPal(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{"id": "ORDER-9", "status": "APPROVED"})
		case r.Method == http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]any{"id": "ORDER-9", "status": "COMPLETED"})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	defer server.Close()

	a := newTestAdapter(t, server)
	res, err := a.Capture(context.Background(), "ORDER-9")
	require.NoError(t, err)
	assert.Equal(t, domain.ReportedPaid, res.Status)
}

func TestCapture_UnapprovedOrderIsRejected(t *testing.T) {
	server := fakePayPal(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": "ORDER-9", "status": "CREATED"})
	})
	defer server.Close()

	a := newTestAdapter(t, server)
	_, err := a.Capture(context.Background(), "ORDER-9")
	var rejected *domain.ProviderRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "ORDER_NOT_APPROVED", rejected.Code)
}

func TestQueryStatus_MapsOrderStates(t *testing.T) {
	cases := map[string]domain.ReportedStatus{
		"CREATED":   domain.ReportedPending,
		"APPROVED":  domain.ReportedAuthorized,
		"COMPLETED": domain.ReportedPaid,
		"VOIDED":    domain.ReportedFailed,
	}
	for upstream, want := range cases {
		t.Run(upstream, func(t *testing.T) {
			server := fakePayPal(t, func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{"id": "ORDER-9", "status": upstream})
			})
			defer server.Close()

			a := newTestAdapter(t, server)
			got, err := a.QueryStatus(context.Background(), "ORDER-9")
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestSettlementMode(t *testing.T) {
	server := fakePayPal(t, func(w http.ResponseWriter, r *http.Request) {})
	defer server.Close()
	a := newTestAdapter(t, server)
	assert.Equal(t, domain.SettleSync, a.SettlementMode())
}
