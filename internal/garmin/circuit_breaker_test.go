package garmin

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		if err := cb.Execute(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("attempt %d: got %v, want boom", i, err)
		}
	}
	if got := cb.State(); got != StateOpen {
		t.Fatalf("state after threshold failures = %v, want open", got)
	}
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("open circuit: got %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)

	_ = cb.Execute(func() error { return errors.New("boom") })
	if got := cb.State(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	time.Sleep(20 * time.Millisecond)

	// The probe succeeds and closes the circuit again.
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if got := cb.State(); got != StateClosed {
		t.Fatalf("state after probe = %v, want closed", got)
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)

	_ = cb.Execute(func() error { return errors.New("boom") })
	time.Sleep(20 * time.Millisecond)

	_ = cb.Execute(func() error { return errors.New("still down") })
	if got := cb.State(); got != StateOpen {
		t.Fatalf("state after failed probe = %v, want open", got)
	}
}

func TestCircuitBreakerIgnoresBenignErrors(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute)

	// Days without data come back as 404s; the upstream answered, so the
	// circuit must stay closed no matter how many there are.
	for i := 0; i < 10; i++ {
		err := cb.Execute(func() error {
			return &APIError{Sentinel: ErrNotFound, Operation: "hrv", Status: 404}
		})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("attempt %d: got %v, want ErrNotFound", i, err)
		}
	}
	if got := cb.State(); got != StateClosed {
		t.Fatalf("state after benign errors = %v, want closed", got)
	}
}

func TestCircuitBreakerBenignErrorResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute)

	_ = cb.Execute(func() error {
		return &APIError{Sentinel: ErrUpstreamError, Operation: "hrv", Status: 502}
	})
	_ = cb.Execute(func() error {
		return &APIError{Sentinel: ErrNotFound, Operation: "hrv", Status: 404}
	})
	_ = cb.Execute(func() error {
		return &APIError{Sentinel: ErrUpstreamError, Operation: "hrv", Status: 502}
	})

	if got := cb.State(); got != StateClosed {
		t.Fatalf("state = %v, want closed (404 proves the upstream is up)", got)
	}
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute)

	_ = cb.Execute(func() error { return errors.New("boom") })
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return errors.New("boom") })

	if got := cb.State(); got != StateClosed {
		t.Fatalf("state = %v, want closed (count reset by success)", got)
	}
}
