// Package config holds the deployment configuration passed into each
// component at construction. There is one initialization point (FromEnv,
// called by main) and no hidden mutation afterwards.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/yourorg/payment-core/internal/domain"
)

// ProviderConfig carries one provider's credentials and endpoints. A
// deployment targets exactly one environment; sandbox versus production
// is decided by the configured base URL, never inferred from key
// prefixes.
type ProviderConfig struct {
	BaseURL       string
	APIKey        string // secret key, client id, or certificate serial
	APISecret     string // client secret or signing secret, where required
	WebhookSecret string // HMAC key or callback token for inbound events
	SuccessURL    string // post-checkout redirect, for invoice providers
	FailureURL    string
}

// Config is the full deployment configuration.
type Config struct {
	ListenAddr string

	// RedisAddr selects the redis-backed store when non-empty; the
	// in-memory store is used otherwise.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// InitiateMaxAttempts bounds retries of ProviderUnavailable faults.
	InitiateMaxAttempts int
	InitiateBackoff     time.Duration

	// WebhookRetryAttempts bounds the retry buffer for webhooks that
	// arrive before the initiate response has been recorded.
	WebhookRetryAttempts int
	WebhookRetryDelay    time.Duration

	Providers map[domain.Provider]ProviderConfig
}

// FromEnv resolves the configuration from environment variables.
func FromEnv() Config {
	return Config{
		ListenAddr:           envOr("PAYCORE_LISTEN_ADDR", ":8080"),
		RedisAddr:            os.Getenv("PAYCORE_REDIS_ADDR"),
		RedisPassword:        os.Getenv("PAYCORE_REDIS_PASSWORD"),
		RedisDB:              envInt("PAYCORE_REDIS_DB", 0),
		InitiateMaxAttempts:  envInt("PAYCORE_INITIATE_MAX_ATTEMPTS", 3),
		InitiateBackoff:      envDuration("PAYCORE_INITIATE_BACKOFF", 500*time.Millisecond),
		WebhookRetryAttempts: envInt("PAYCORE_WEBHOOK_RETRY_ATTEMPTS", 5),
		WebhookRetryDelay:    envDuration("PAYCORE_WEBHOOK_RETRY_DELAY", 200*time.Millisecond),
		Providers: map[domain.Provider]ProviderConfig{
			domain.ProviderXendit: {
				BaseURL:       envOr("XENDIT_BASE_URL", "https://api.xendit.co"),
				APIKey:        os.Getenv("XENDIT_SECRET_KEY"),
				WebhookSecret: os.Getenv("XENDIT_CALLBACK_TOKEN"),
				SuccessURL:    os.Getenv("XENDIT_SUCCESS_REDIRECT_URL"),
				FailureURL:    os.Getenv("XENDIT_FAILURE_REDIRECT_URL"),
			},
			domain.ProviderPaystack: {
				BaseURL:       envOr("PAYSTACK_BASE_URL", "https://api.paystack.co"),
				APIKey:        os.Getenv("PAYSTACK_SECRET_KEY"),
				WebhookSecret: os.Getenv("PAYSTACK_SECRET_KEY"),
			},
			domain.ProviderPayPal: {
				BaseURL:   envOr("PAYPAL_BASE_URL", "https://api-m.sandbox.paypal.com"),
				APIKey:    os.Getenv("PAYPAL_CLIENT_ID"),
				APISecret: os.Getenv("PAYPAL_CLIENT_SECRET"),
			},
			domain.ProviderMoneyGram: {
				BaseURL: envOr("MONEYGRAM_BASE_URL", "https://sandboxapi.moneygram.com"),
				APIKey:  os.Getenv("MONEYGRAM_API_TOKEN"),
			},
			domain.ProviderBinance: {
				BaseURL:       envOr("BINANCE_BASE_URL", "https://bpay.binanceapi.com"),
				APIKey:        os.Getenv("BINANCE_API_KEY"),
				APISecret:     os.Getenv("BINANCE_API_SECRET"),
				WebhookSecret: os.Getenv("BINANCE_API_SECRET"),
			},
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
