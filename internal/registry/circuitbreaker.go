package registry

import (
	"sync"
	"time"
)

// circuitState is the classic closed/open/half-open breaker state.
type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

// circuitBreaker is a per-provider-instance breaker: a provider whose
// breaker is open is skipped in the priority walk exactly as an unhealthy
// provider would be. Only the fields the registry consults are tracked
// (state, failure threshold, reset timeout).
type circuitBreaker struct {
	mu              sync.Mutex
	state           circuitState
	failureCount    int
	threshold       int
	resetTimeout    time.Duration
	lastFailureTime time.Time
}

func newCircuitBreaker(threshold int, resetTimeout time.Duration) *circuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	return &circuitBreaker{threshold: threshold, resetTimeout: resetTimeout}
}

// allow reports whether a call should be attempted through this provider,
// transitioning open -> half-open once resetTimeout has elapsed.
func (cb *circuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case circuitClosed:
		return true
	case circuitOpen:
		if time.Since(cb.lastFailureTime) > cb.resetTimeout {
			cb.state = circuitHalfOpen
			return true
		}
		return false
	default: // half-open: allow a single probe through
		return true
	}
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount = 0
	cb.state = circuitClosed
}

func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount++
	cb.lastFailureTime = time.Now()
	if cb.state == circuitHalfOpen || cb.failureCount >= cb.threshold {
		cb.state = circuitOpen
	}
}
