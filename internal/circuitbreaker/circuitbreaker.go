// Package circuitbreaker tracks per-provider health and short-circuits
// calls to providers that keep failing. Closed admits everything, Open
// rejects until a cooldown passes, HalfOpen admits probes until enough
// succeed to close again.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/yourorg/payment-core/internal/domain"
)

// State is the circuit state for one provider.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

const (
	defaultFailureThreshold = 5
	defaultCooldown         = 30 * time.Second
	defaultProbeSuccesses   = 2
)

type providerState struct {
	state        State
	failures     int
	probesPassed int
	openUntil    time.Time
}

// Breaker is an in-memory per-provider circuit breaker.
type Breaker struct {
	mu        sync.Mutex
	providers map[domain.Provider]*providerState

	failureThreshold int
	cooldown         time.Duration
	probeSuccesses   int
	now              func() time.Time
}

// New creates a Breaker with default thresholds.
func New() *Breaker {
	return NewWithSettings(defaultFailureThreshold, defaultCooldown, defaultProbeSuccesses)
}

// NewWithSettings creates a Breaker with explicit thresholds.
func NewWithSettings(failureThreshold int, cooldown time.Duration, probeSuccesses int) *Breaker {
	return &Breaker{
		providers:        make(map[domain.Provider]*providerState),
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		probeSuccesses:   probeSuccesses,
		now:              time.Now,
	}
}

func (b *Breaker) get(p domain.Provider) *providerState {
	ps, ok := b.providers[p]
	if !ok {
		ps = &providerState{state: Closed}
		b.providers[p] = ps
	}
	return ps
}

// Allow reports whether a call to the provider may proceed. An Open
// circuit whose cooldown has elapsed moves to HalfOpen and admits the
// call as a probe.
func (b *Breaker) Allow(p domain.Provider) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	ps := b.get(p)
	switch ps.state {
	case Open:
		if b.now().After(ps.openUntil) {
			ps.state = HalfOpen
			ps.probesPassed = 0
			return true
		}
		return false
	default:
		return true
	}
}

// RecordFailure counts a provider fault. Enough consecutive failures in
// Closed, or any failure in HalfOpen, opens the circuit.
func (b *Breaker) RecordFailure(p domain.Provider) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ps := b.get(p)
	switch ps.state {
	case Closed:
		ps.failures++
		if ps.failures >= b.failureThreshold {
			ps.state = Open
			ps.openUntil = b.now().Add(b.cooldown)
		}
	case HalfOpen:
		ps.state = Open
		ps.openUntil = b.now().Add(b.cooldown)
		ps.failures = 0
		ps.probesPassed = 0
	}
}

// RecordSuccess counts a successful call. Enough probe successes in
// HalfOpen close the circuit.
func (b *Breaker) RecordSuccess(p domain.Provider) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ps := b.get(p)
	switch ps.state {
	case Closed:
		ps.failures = 0
	case HalfOpen:
		ps.probesPassed++
		if ps.probesPassed >= b.probeSuccesses {
			ps.state = Closed
			ps.failures = 0
			ps.probesPassed = 0
		}
	}
}

// StateOf returns the provider's current circuit state without
// triggering any transition.
func (b *Breaker) StateOf(p domain.Provider) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	ps, ok := b.providers[p]
	if !ok {
		return Closed
	}
	return ps.state
}
