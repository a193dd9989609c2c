package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHealthAlwaysOK(t *testing.T) {
	m := NewManager("v0.3.0")
	m.Register(NewPingChecker("db", func(context.Context) error {
		return errors.New("down")
	}))

	rec := httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != 200 {
		t.Fatalf("liveness code = %d, must be 200 even with failing components", rec.Code)
	}

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Version != "v0.3.0" {
		t.Errorf("version = %q", resp.Version)
	}
	if resp.Checks != nil {
		t.Error("non-verbose health should omit component detail")
	}
}

func TestHealthVerboseIncludesChecks(t *testing.T) {
	m := NewManager("v0.3.0")
	m.Register(NewPingChecker("db", func(context.Context) error { return nil }))

	rec := httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest("GET", "/healthz?verbose=true", nil))

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Checks["db"].Status != StatusHealthy {
		t.Errorf("checks = %+v", resp.Checks)
	}
}

func TestReadyFailsOnUnhealthyComponent(t *testing.T) {
	m := NewManager("v0.3.0")
	m.Register(NewPingChecker("db", func(context.Context) error {
		return errors.New("locked")
	}))

	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != 503 {
		t.Fatalf("readiness code = %d, want 503", rec.Code)
	}
}

func TestReadyDegradedStaysInRotation(t *testing.T) {
	m := NewManager("v0.3.0")
	m.Register(NewCredentialsChecker(func() bool { return false }))

	resp := m.Ready(context.Background())
	if !resp.Ready {
		t.Error("degraded components must not fail readiness")
	}
	if resp.Status != StatusDegraded {
		t.Errorf("status = %s", resp.Status)
	}
}

func TestReadyNoCheckers(t *testing.T) {
	m := NewManager("v0.3.0")
	resp := m.Ready(context.Background())
	if !resp.Ready || resp.Status != StatusHealthy {
		t.Errorf("empty manager = %+v", resp)
	}
}

func TestLastSyncChecker(t *testing.T) {
	fresh := NewLastSyncChecker(func(context.Context) (time.Time, error) {
		return time.Now().Add(-time.Hour), nil
	}, 48*time.Hour)
	if got := fresh.Check(context.Background()); got.Status != StatusHealthy {
		t.Errorf("fresh sync = %+v", got)
	}

	stale := NewLastSyncChecker(func(context.Context) (time.Time, error) {
		return time.Now().Add(-72 * time.Hour), nil
	}, 48*time.Hour)
	if got := stale.Check(context.Background()); got.Status != StatusDegraded {
		t.Errorf("stale sync = %+v", got)
	}

	never := NewLastSyncChecker(func(context.Context) (time.Time, error) {
		return time.Time{}, errors.New("no rows")
	}, 48*time.Hour)
	if got := never.Check(context.Background()); got.Status != StatusDegraded {
		t.Errorf("never synced = %+v", got)
	}
}

func TestBreakerChecker(t *testing.T) {
	for state, want := range map[string]Status{
		"closed":    StatusHealthy,
		"open":      StatusDegraded,
		"half-open": StatusDegraded,
	} {
		c := NewBreakerChecker(func() string { return state })
		if got := c.Check(context.Background()); got.Status != want {
			t.Errorf("state %s: got %s, want %s", state, got.Status, want)
		}
	}
}
