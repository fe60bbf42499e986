package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/yourorg/payment-core/internal/domain"
)

func newTestBreaker(clock *time.Time) *Breaker {
	b := NewWithSettings(3, 10*time.Second, 2)
	b.now = func() time.Time { return *clock }
	return b
}

func TestClosedByDefault(t *testing.T) {
	b := New()
	assert.True(t, b.Allow(domain.ProviderXendit))
	assert.Equal(t, Closed, b.StateOf(domain.ProviderXendit))
}

func TestOpensAfterThresholdFailures(t *testing.T) {
	clock := time.Now()
	b := newTestBreaker(&clock)

	b.RecordFailure(domain.ProviderPaystack)
	b.RecordFailure(domain.ProviderPaystack)
	assert.True(t, b.Allow(domain.ProviderPaystack))

	b.RecordFailure(domain.ProviderPaystack)
	assert.Equal(t, Open, b.StateOf(domain.ProviderPaystack))
	assert.False(t, b.Allow(domain.ProviderPaystack))
}

func TestSuccessResetsFailureCount(t *testing.T) {
	clock := time.Now()
	b := newTestBreaker(&clock)

	b.RecordFailure(domain.ProviderXendit)
	b.RecordFailure(domain.ProviderXendit)
	b.RecordSuccess(domain.ProviderXendit)
	b.RecordFailure(domain.ProviderXendit)
	b.RecordFailure(domain.ProviderXendit)

	assert.Equal(t, Closed, b.StateOf(domain.ProviderXendit))
}

func TestHalfOpenAfterCooldown(t *testing.T) {
	clock := time.Now()
	b := newTestBreaker(&clock)

	for i := 0; i < 3; i++ {
		b.RecordFailure(domain.ProviderBinance)
	}
	assert.False(t, b.Allow(domain.ProviderBinance))

	clock = clock.Add(11 * time.Second)
	assert.True(t, b.Allow(domain.ProviderBinance))
	assert.Equal(t, HalfOpen, b.StateOf(domain.ProviderBinance))
}

func TestHalfOpenClosesAfterProbeSuccesses(t *testing.T) {
	clock := time.Now()
	b := newTestBreaker(&clock)

	for i := 0; i < 3; i++ {
		b.RecordFailure(domain.ProviderBinance)
	}
	clock = clock.Add(11 * time.Second)
	assert.True(t, b.Allow(domain.ProviderBinance))

	b.RecordSuccess(domain.ProviderBinance)
	assert.Equal(t, HalfOpen, b.StateOf(domain.ProviderBinance))
	b.RecordSuccess(domain.ProviderBinance)
	assert.Equal(t, Closed, b.StateOf(domain.ProviderBinance))
}

func TestHalfOpenReopensOnFailure(t *testing.T) {
	clock := time.Now()
	b := newTestBreaker(&clock)

	for i := 0; i < 3; i++ {
		b.RecordFailure(domain.ProviderMoneyGram)
	}
	clock = clock.Add(11 * time.Second)
	assert.True(t, b.Allow(domain.ProviderMoneyGram))

	b.RecordFailure(domain.ProviderMoneyGram)
	assert.Equal(t, Open, b.StateOf(domain.ProviderMoneyGram))
	assert.False(t, b.Allow(domain.ProviderMoneyGram))
}

func TestProvidersAreIndependent(t *testing.T) {
	clock := time.Now()
	b := newTestBreaker(&clock)

	for i := 0; i < 3; i++ {
		b.RecordFailure(domain.ProviderPaystack)
	}
	assert.False(t, b.Allow(domain.ProviderPaystack))
	assert.True(t, b.Allow(domain.ProviderXendit))
}
