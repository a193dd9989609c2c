// Package health provides liveness and readiness checks for the pulse API
// server, with per-component status detail.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bernardmuller/pulse/internal/log"
)

// Status represents a component or overall health status.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the outcome of one component check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Response is the full health or readiness payload.
type Response struct {
	Status    Status                 `json:"status"`
	Ready     bool                   `json:"ready"`
	Version   string                 `json:"version,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker is one component health probe.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Manager aggregates component checks.
type Manager struct {
	version  string
	checkers []Checker
}

func NewManager(version string) *Manager {
	return &Manager{version: version}
}

func (m *Manager) Register(c Checker) {
	m.checkers = append(m.checkers, c)
}

// Health is the liveness view: the process is alive, component detail is
// informational only.
func (m *Manager) Health(ctx context.Context, verbose bool) Response {
	resp := Response{Status: StatusHealthy, Ready: true, Version: m.version, Timestamp: time.Now()}
	if verbose {
		resp.Status, _, resp.Checks = m.runChecks(ctx)
	}
	return resp
}

// Ready is the readiness view: any unhealthy component takes the server out
// of rotation.
func (m *Manager) Ready(ctx context.Context) Response {
	resp := Response{Ready: true, Status: StatusHealthy, Timestamp: time.Now()}
	if len(m.checkers) == 0 {
		return resp
	}
	var ready bool
	resp.Status, ready, resp.Checks = m.runChecks(ctx)
	resp.Ready = ready
	return resp
}

func (m *Manager) runChecks(ctx context.Context) (Status, bool, map[string]CheckResult) {
	checks := make(map[string]CheckResult, len(m.checkers))
	status := StatusHealthy
	ready := true

	for _, c := range m.checkers {
		result := c.Check(ctx)
		checks[c.Name()] = result
		switch result.Status {
		case StatusUnhealthy:
			status = StatusUnhealthy
			ready = false
		case StatusDegraded:
			if status == StatusHealthy {
				status = StatusDegraded
			}
		}
	}
	return status, ready, checks
}

// ServeHealth handles liveness requests. Always 200 while the process runs.
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") == "true"
	resp := m.Health(r.Context(), verbose)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "health")
		logger.Error().Err(err).Msg("encode health response")
	}
}

// ServeReady handles readiness requests. 503 when any component is down.
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	resp := m.Ready(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if resp.Ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "health")
		logger.Error().Err(err).Msg("encode readiness response")
	}
}

// PingChecker wraps any ping-style dependency (database, redis).
type PingChecker struct {
	name string
	ping func(ctx context.Context) error
}

func NewPingChecker(name string, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping}
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// CredentialsChecker reports whether wearable credentials are stored. Missing
// credentials degrade the service (sync cannot run) but do not kill it.
type CredentialsChecker struct {
	exists func() bool
}

func NewCredentialsChecker(exists func() bool) *CredentialsChecker {
	return &CredentialsChecker{exists: exists}
}

func (c *CredentialsChecker) Name() string { return "credentials" }

func (c *CredentialsChecker) Check(context.Context) CheckResult {
	if !c.exists() {
		return CheckResult{Status: StatusDegraded, Message: "no stored credentials, run `pulse login`"}
	}
	return CheckResult{Status: StatusHealthy}
}

// LastSyncChecker degrades when the most recent successful sync is stale.
type LastSyncChecker struct {
	lastSync func(ctx context.Context) (time.Time, error)
	maxAge   time.Duration
}

func NewLastSyncChecker(lastSync func(ctx context.Context) (time.Time, error), maxAge time.Duration) *LastSyncChecker {
	if maxAge <= 0 {
		maxAge = 48 * time.Hour
	}
	return &LastSyncChecker{lastSync: lastSync, maxAge: maxAge}
}

func (c *LastSyncChecker) Name() string { return "last_sync" }

func (c *LastSyncChecker) Check(ctx context.Context) CheckResult {
	t, err := c.lastSync(ctx)
	if err != nil {
		return CheckResult{Status: StatusDegraded, Message: "no sync recorded yet"}
	}
	if age := time.Since(t); age > c.maxAge {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("last sync %s ago", age.Round(time.Minute)),
		}
	}
	return CheckResult{Status: StatusHealthy}
}

// BreakerChecker surfaces the upstream circuit breaker state.
type BreakerChecker struct {
	state func() string
}

func NewBreakerChecker(state func() string) *BreakerChecker {
	return &BreakerChecker{state: state}
}

func (c *BreakerChecker) Name() string { return "upstream_breaker" }

func (c *BreakerChecker) Check(context.Context) CheckResult {
	switch s := c.state(); s {
	case "open":
		return CheckResult{Status: StatusDegraded, Message: "circuit breaker open, upstream failing"}
	case "half-open":
		return CheckResult{Status: StatusDegraded, Message: "circuit breaker probing upstream"}
	default:
		return CheckResult{Status: StatusHealthy}
	}
}
