// Package money converts user-facing decimal amounts into provider
// minor-unit representations, applying currency conversion through an
// injected rate lookup when the provider cannot accept the input currency.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/yourorg/payment-core/internal/domain"
)

// RateLookup resolves an exchange rate between two ISO 4217 currencies.
// Implementations are injected; the core never sources rates itself.
type RateLookup interface {
	Rate(from, to string) (decimal.Decimal, error)
}

// Normalized is the provider-ready representation of an amount.
type Normalized struct {
	MinorUnits int64
	Currency   string
}

// minorUnitExponents maps ISO 4217 codes to their minor-unit digit count.
// Currencies absent from the table use the ISO default of 2.
var minorUnitExponents = map[string]int32{
	"BHD": 3,
	"BIF": 0,
	"CLP": 0,
	"DJF": 0,
	"GNF": 0,
	"IQD": 3,
	"JOD": 3,
	"JPY": 0,
	"KMF": 0,
	"KRW": 0,
	"KWD": 3,
	"LYD": 3,
	"OMR": 3,
	"PYG": 0,
	"RWF": 0,
	"TND": 3,
	"UGX": 0,
	"VND": 0,
	"VUV": 0,
	"XAF": 0,
	"XOF": 0,
	"XPF": 0,
}

// Exponent returns the minor-unit digit count for a currency code.
func Exponent(currency string) int32 {
	if exp, ok := minorUnitExponents[currency]; ok {
		return exp
	}
	return 2
}

// Normalizer converts decimal amounts to minor units.
type Normalizer struct {
	rates RateLookup
}

// NewNormalizer creates a Normalizer. The rate lookup may be nil, in
// which case cross-currency normalization fails with RateUnavailable.
func NewNormalizer(rates RateLookup) *Normalizer {
	return &Normalizer{rates: rates}
}

// Normalize converts amount in the given currency into minor units of
// targetCurrency (or of currency itself when targetCurrency is empty or
// equal). Rounding is half-up at the currency's minor-unit precision.
func (n *Normalizer) Normalize(amount decimal.Decimal, currency, targetCurrency string) (Normalized, error) {
	if !amount.IsPositive() {
		return Normalized{}, fmt.Errorf("money: amount %s must be positive: %w", amount.String(), domain.ErrInvalidAmount)
	}

	out := currency
	if targetCurrency != "" && targetCurrency != currency {
		if n.rates == nil {
			return Normalized{}, fmt.Errorf("money: no rate lookup configured for %s->%s: %w", currency, targetCurrency, domain.ErrRateUnavailable)
		}
		rate, err := n.rates.Rate(currency, targetCurrency)
		if err != nil {
			return Normalized{}, fmt.Errorf("money: rate %s->%s: %v: %w", currency, targetCurrency, err, domain.ErrRateUnavailable)
		}
		amount = amount.Mul(rate)
		out = targetCurrency
	}

	// Round rounds half away from zero; amounts are positive here, so this
	// is half-up as required.
	minor := amount.Shift(Exponent(out)).Round(0)
	if !minor.IsInteger() || !minor.BigInt().IsInt64() {
		return Normalized{}, fmt.Errorf("money: amount %s out of range: %w", amount.String(), domain.ErrInvalidAmount)
	}
	return Normalized{MinorUnits: minor.IntPart(), Currency: out}, nil
}

// NormalizeString parses a decimal string and normalizes it.
func (n *Normalizer) NormalizeString(amount, currency, targetCurrency string) (Normalized, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Normalized{}, fmt.Errorf("money: parse amount %q: %w", amount, domain.ErrInvalidAmount)
	}
	return n.Normalize(d, currency, targetCurrency)
}

// FromMinorUnits converts minor units back to a decimal major-unit amount.
func FromMinorUnits(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, 0).Shift(-Exponent(currency))
}

// MajorString renders minor units as the fixed-precision decimal string
// providers such as PayPal and Binance Pay expect (e.g. 1234 USD -> "12.34").
func MajorString(minor int64, currency string) string {
	return FromMinorUnits(minor, currency).StringFixed(Exponent(currency))
}
