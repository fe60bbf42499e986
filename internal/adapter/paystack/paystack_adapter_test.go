package paystack

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

func newTestAdapter(server *httptest.Server) *Adapter {
	return NewAdapter(server.Client(), config.ProviderConfig{
		BaseURL: server.URL,
		APIKey:  "sk_test_abc",
	})
}

func TestInitiate_ReturnsClientActionToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_abc", r.Header.Get("Authorization"))

		var req initializeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(500000), req.Amount)
		assert.Equal(t, "GHS", req.Currency)
		assert.Equal(t, "ord-7", req.Reference)

		json.NewEncoder(w).Encode(map[string]any{
			"status":  true,
			"message": "Authorization URL created",
			"data": initializeData{
				AuthorizationURL: "https://checkout.paystack.com/abc123",
				AccessCode:       "abc123",
				Reference:        "ord-7",
			},
		})
	}))
	defer server.Close()

	a := newTestAdapter(server)
	intent := domain.PaymentIntent{
		Provider:          domain.ProviderPaystack,
		PayerEmail:        "buyer@example.com",
		ExternalReference: "ord-7",
	}
	res, err := a.Initiate(context.Background(), intent, money.Normalized{MinorUnits: 500000, Currency: "GHS"})
	require.NoError(t, err)
	assert.Equal(t, "ord-7", res.ProviderTransactionID)
	assert.Equal(t, "abc123", res.ClientActionToken)
	assert.Empty(t, res.RedirectURL, "client-tokenized flow must not also require redirect")
	assert.Equal(t, domain.ReportedPending, res.Status)
}

func TestInitiate_MissingEmailFailsValidation(t *testing.T) {
	a := NewAdapter(nil, config.ProviderConfig{BaseURL: "https://api.paystack.co"})
	_, err := a.Initiate(context.Background(), domain.PaymentIntent{ExternalReference: "r"}, money.Normalized{MinorUnits: 100, Currency: "NGN"})
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
}

func TestInitiate_DeclinedEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"status": false, "message": "Invalid key"})
	}))
	defer server.Close()

	a := newTestAdapter(server)
	intent := domain.PaymentIntent{PayerEmail: "x@y.z", ExternalReference: "r"}
	_, err := a.Initiate(context.Background(), intent, money.Normalized{MinorUnits: 100, Currency: "NGN"})
	var rejected *domain.ProviderRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "Invalid key", rejected.Message)
}

func TestQueryStatus_Verify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/verify/ord-7", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data":   verifyData{Status: "success", Reference: "ord-7"},
		})
	}))
	defer server.Close()

	a := newTestAdapter(server)
	got, err := a.QueryStatus(context.Background(), "ord-7")
	require.NoError(t, err)
	assert.Equal(t, domain.ReportedPaid, got)
}

func TestMapStatus(t *testing.T) {
	assert.Equal(t, domain.ReportedPaid, MapStatus("success"))
	assert.Equal(t, domain.ReportedExpired, MapStatus("abandoned"))
	assert.Equal(t, domain.ReportedPending, MapStatus("pending"))
	assert.Equal(t, domain.ReportedFailed, MapStatus("failed"))
}
