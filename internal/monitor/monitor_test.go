package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidIntentPasses(t *testing.T) {
	cm, err := NewContractMonitor()
	require.NoError(t, err)

	valid, violations, err := cm.Validate([]byte(`{
		"amount": "12.34",
		"currency": "USD",
		"provider": "xendit",
		"payerEmail": "buyer@example.com",
		"metadata": {"orderId": "42"}
	}`))
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Empty(t, violations)
}

func TestInvalidIntentsAreReported(t *testing.T) {
	cm, err := NewContractMonitor()
	require.NoError(t, err)

	cases := map[string]string{
		"missing amount":      `{"currency": "USD", "provider": "xendit"}`,
		"numeric amount":      `{"amount": 12.34, "currency": "USD", "provider": "xendit"}`,
		"negative amount":     `{"amount": "-5", "currency": "USD", "provider": "xendit"}`,
		"unknown provider":    `{"amount": "1.00", "currency": "USD", "provider": "stripe"}`,
		"bad currency":        `{"amount": "1.00", "currency": "USDT2", "provider": "binance"}`,
		"unexpected field":    `{"amount": "1.00", "currency": "USD", "provider": "xendit", "extra": true}`,
		"non-string metadata": `{"amount": "1.00", "currency": "USD", "provider": "xendit", "metadata": {"n": 1}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			valid, violations, err := cm.Validate([]byte(body))
			require.NoError(t, err)
			assert.False(t, valid)
			assert.NotEmpty(t, violations)
		})
	}
}

func TestFormatErrors(t *testing.T) {
	assert.Equal(t, "", FormatErrors(nil))
	assert.Equal(t, "validation errors: a; b", FormatErrors([]string{"a", "b"}))
}
