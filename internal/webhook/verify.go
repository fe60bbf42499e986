// Package webhook authenticates, normalizes and dispatches asynchronous
// provider notifications. Verification is fail-closed: a delivery that
// cannot be positively authenticated is rejected, never processed.
package webhook

import (
	"crypto/hmac"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/yourorg/payment-core/internal/adapter/binance"
	"github.com/yourorg/payment-core/internal/domain"
)

// Verifier authenticates one raw webhook delivery. Implementations must
// return an error wrapping domain.ErrSignatureInvalid unless the payload
// is positively authenticated.
type Verifier interface {
	Verify(header http.Header, body []byte) error
}

// PaystackVerifier checks the x-paystack-signature header, an HMAC-SHA512
// hex digest of the raw body keyed with the account secret key.
type PaystackVerifier struct {
	Secret string
}

func (v PaystackVerifier) Verify(header http.Header, body []byte) error {
	if v.Secret == "" {
		return fmt.Errorf("webhook: paystack secret not configured: %w", domain.ErrSignatureInvalid)
	}
	mac := hmac.New(sha512.New, []byte(v.Secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	got := header.Get("x-paystack-signature")
	if got == "" || !hmac.Equal([]byte(want), []byte(got)) {
		return fmt.Errorf("webhook: paystack signature mismatch: %w", domain.ErrSignatureInvalid)
	}
	return nil
}

// XenditVerifier checks the x-callback-token header against the verification
// token from the dashboard.
type XenditVerifier struct {
	Token string
}

func (v XenditVerifier) Verify(header http.Header, _ []byte) error {
	if v.Token == "" {
		return fmt.Errorf("webhook: xendit callback token not configured: %w", domain.ErrSignatureInvalid)
	}
	got := header.Get("x-callback-token")
	if got == "" || subtle.ConstantTimeCompare([]byte(v.Token), []byte(got)) != 1 {
		return fmt.Errorf("webhook: xendit callback token mismatch: %w", domain.ErrSignatureInvalid)
	}
	return nil
}

// BinanceVerifier checks the BinancePay-Signature header, an HMAC-SHA512
// digest over the timestamp, nonce and body of the delivery.
type BinanceVerifier struct {
	Secret string
}

func (v BinanceVerifier) Verify(header http.Header, body []byte) error {
	if v.Secret == "" {
		return fmt.Errorf("webhook: binance secret not configured: %w", domain.ErrSignatureInvalid)
	}
	timestamp := header.Get("BinancePay-Timestamp")
	nonce := header.Get("BinancePay-Nonce")
	got := header.Get("BinancePay-Signature")
	if timestamp == "" || nonce == "" || got == "" {
		return fmt.Errorf("webhook: binance signature headers missing: %w", domain.ErrSignatureInvalid)
	}
	want := binance.Sign(v.Secret, timestamp, nonce, body)
	if !hmac.Equal([]byte(want), []byte(got)) {
		return fmt.Errorf("webhook: binance signature mismatch: %w", domain.ErrSignatureInvalid)
	}
	return nil
}
