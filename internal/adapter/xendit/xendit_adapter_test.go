package xendit

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

func testIntent() domain.PaymentIntent {
	return domain.PaymentIntent{
		Provider:          domain.ProviderXendit,
		Amount:            "150.00",
		Currency:          "PHP",
		PayerEmail:        "buyer@example.com",
		Description:       "Family package",
		ExternalReference: "ord-1",
	}
}

func newTestAdapter(server *httptest.Server) *Adapter {
	return NewAdapter(server.Client(), config.ProviderConfig{
		BaseURL:    server.URL,
		APIKey:     "xnd_development_abc",
		SuccessURL: "https://shop.test/payment-success",
		FailureURL: "https://shop.test/payment-failed",
	})
}

func TestInitiate_CreatesInvoice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/invoices", r.URL.Path)

		user, _, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "xnd_development_abc", user)

		var req invoiceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ord-1", req.ExternalID)
		assert.Equal(t, 150.0, req.Amount)
		assert.Equal(t, "PHP", req.Currency)
		assert.Equal(t, "buyer@example.com", req.PayerEmail)
		assert.Equal(t, "https://shop.test/payment-success", req.SuccessRedirectURL)

		json.NewEncoder(w).Encode(invoiceResponse{
			ID:         "inv-123",
			InvoiceURL: "https://checkout.xendit.co/web/inv-123",
			Status:     "PENDING",
		})
	}))
	defer server.Close()

	a := newTestAdapter(server)
	norm := money.Normalized{MinorUnits: 15000, Currency: "PHP"}
	res, err := a.Initiate(context.Background(), testIntent(), norm)
	require.NoError(t, err)
	assert.Equal(t, "inv-123", res.ProviderTransactionID)
	assert.Equal(t, "https://checkout.xendit.co/web/inv-123", res.RedirectURL)
	assert.Empty(t, res.ClientActionToken)
	assert.Equal(t, domain.ReportedPending, res.Status)
	assert.NotEmpty(t, res.RawProviderPayload)
}

func TestInitiate_RequiresPayerEmail(t *testing.T) {
	a := NewAdapter(nil, config.ProviderConfig{BaseURL: "https://api.xendit.co"})
	intent := testIntent()
	intent.PayerEmail = ""
	_, err := a.Initiate(context.Background(), intent, money.Normalized{MinorUnits: 100, Currency: "PHP"})
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
}

func TestInitiate_RejectionMapsToProviderRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errorResponse{ErrorCode: "UNSUPPORTED_CURRENCY", Message: "currency not supported"})
	}))
	defer server.Close()

	a := newTestAdapter(server)
	_, err := a.Initiate(context.Background(), testIntent(), money.Normalized{MinorUnits: 100, Currency: "XXX"})
	var rejected *domain.ProviderRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "UNSUPPORTED_CURRENCY", rejected.Code)
	assert.Equal(t, domain.ProviderXendit, rejected.Provider)
}

func TestInitiate_ServerErrorMapsToUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	a := newTestAdapter(server)
	_, err := a.Initiate(context.Background(), testIntent(), money.Normalized{MinorUnits: 100, Currency: "PHP"})
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestQueryStatus_MapsInvoiceStates(t *testing.T) {
	cases := map[string]domain.ReportedStatus{
		"PENDING": domain.ReportedPending,
		"PAID":    domain.ReportedPaid,
		"SETTLED": domain.ReportedPaid,
		"EXPIRED": domain.ReportedExpired,
		"VOIDED":  domain.ReportedFailed,
	}
	for upstream, want := range cases {
		t.Run(upstream, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v2/invoices/inv-123", r.URL.Path)
				json.NewEncoder(w).Encode(invoiceResponse{ID: "inv-123", Status: upstream})
			}))
			defer server.Close()

			a := newTestAdapter(server)
			got, err := a.QueryStatus(context.Background(), "inv-123")
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}
