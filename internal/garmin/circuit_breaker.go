package garmin

import (
	"errors"
	"sync"
	"time"

	"github.com/bernardmuller/pulse/internal/metrics"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // normal operation, requests allowed
	StateOpen                  // circuit open, requests blocked
	StateHalfOpen              // testing if the upstream recovered
)

var ErrCircuitOpen = errors.New("garmin: circuit breaker is open")

// CircuitBreaker prevents hammering Garmin Connect while it is failing.
type CircuitBreaker struct {
	mu               sync.RWMutex
	state            State
	failures         int
	failureThreshold int
	resetTimeout     time.Duration
	lastFailure      time.Time
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(threshold int, resetTimeout time.Duration) *CircuitBreaker {
	cb := &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: threshold,
		resetTimeout:     resetTimeout,
	}
	metrics.SetCircuitBreakerState("garmin", stateLabel(cb.state))
	return cb
}

// Execute runs the given function if the circuit is closed or half-open.
// Only upstream-health failures count against the breaker: a 404 for a day
// with no data means Garmin answered fine, and sparse history must not take
// the whole sync down.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allowRequest() {
		return ErrCircuitOpen
	}

	err := fn()
	if err != nil {
		if breakerFailure(err) {
			cb.recordFailure()
		} else {
			cb.recordSuccess()
		}
		return err
	}

	cb.recordSuccess()
	return nil
}

// breakerFailure reports whether err indicates the upstream itself is
// unhealthy. Not found, unauthorized, throttled and undecodable responses
// mean Garmin answered; they must not open the circuit.
func breakerFailure(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrThrottled),
		errors.Is(err, ErrBadResponse):
		return false
	}
	return true
}

func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	prevState := cb.state

	if cb.state == StateClosed {
		cb.mu.Unlock()
		return true
	}

	if cb.state == StateOpen {
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			cb.state = StateHalfOpen
			state := cb.state
			cb.mu.Unlock()
			if state != prevState {
				metrics.SetCircuitBreakerState("garmin", stateLabel(state))
			}
			return true
		}
		cb.mu.Unlock()
		return false
	}

	// StateHalfOpen: allow the probe request through.
	cb.mu.Unlock()
	return true
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	prevState := cb.state

	cb.failures++
	cb.lastFailure = time.Now()

	if cb.state == StateHalfOpen {
		cb.state = StateOpen
	} else if cb.failures >= cb.failureThreshold {
		cb.state = StateOpen
	}
	state := cb.state
	cb.mu.Unlock()
	if state != prevState {
		metrics.SetCircuitBreakerState("garmin", stateLabel(state))
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	prevState := cb.state

	cb.failures = 0
	cb.state = StateClosed
	state := cb.state
	cb.mu.Unlock()
	if state != prevState {
		metrics.SetCircuitBreakerState("garmin", stateLabel(state))
	}
}

// State returns the current state (thread-safe).
func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

func stateLabel(state State) string {
	switch state {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}
