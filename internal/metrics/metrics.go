// Package metrics exposes prometheus instrumentation for pulse.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync metrics
	syncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_sync_runs_total",
		Help: "Sync runs by outcome",
	}, []string{"outcome"}) // outcome=success|partial|failure

	syncFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_sync_failures_total",
		Help: "Sync failures by stage",
	}, []string{"stage"}) // stage=auth|fetch|normalize|store|journal

	daysSyncedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_days_synced_total",
		Help: "Per-day signal syncs by signal and outcome",
	}, []string{"signal", "outcome"}) // signal=hrv|sleep|steps|load

	syncDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pulse_sync_duration_seconds",
		Help:    "Wall time of full sync runs",
		Buckets: prometheus.DefBuckets,
	})

	lastSyncTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulse_last_sync_timestamp_seconds",
		Help: "Unix time of the last successful sync",
	})

	// Upstream metrics
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_upstream_requests_total",
		Help: "Garmin Connect requests by endpoint and status class",
	}, []string{"endpoint", "status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pulse_upstream_request_duration_seconds",
		Help:    "Garmin Connect request latency by endpoint",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pulse_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"upstream"})

	tokenRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_token_refresh_total",
		Help: "OAuth2 token refreshes by outcome",
	}, []string{"outcome"})

	// Coaching metrics
	readinessScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulse_readiness_score",
		Help: "Most recently computed readiness score",
	})

	assessmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_assessments_total",
		Help: "Readiness assessments served by grade",
	}, []string{"grade"})

	// Cache metrics
	cacheOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_cache_ops_total",
		Help: "Cache operations by backend and outcome",
	}, []string{"backend", "op"}) // op=hit|miss|set
)

func IncSyncRun(outcome string)         { syncRunsTotal.WithLabelValues(outcome).Inc() }
func IncSyncFailure(stage string)       { syncFailuresTotal.WithLabelValues(stage).Inc() }
func ObserveSyncDuration(secs float64)  { syncDurationSeconds.Observe(secs) }
func SetLastSyncTimestamp(unix float64) { lastSyncTimestamp.Set(unix) }
func IncDaySynced(signal, outcome string) {
	daysSyncedTotal.WithLabelValues(signal, outcome).Inc()
}

func IncUpstreamRequest(endpoint, status string) {
	upstreamRequestsTotal.WithLabelValues(endpoint, status).Inc()
}

func ObserveUpstreamDuration(endpoint string, secs float64) {
	upstreamRequestDuration.WithLabelValues(endpoint).Observe(secs)
}

// SetCircuitBreakerState maps a state label onto the numeric gauge.
func SetCircuitBreakerState(upstream, state string) {
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	circuitBreakerState.WithLabelValues(upstream).Set(v)
}

func IncTokenRefresh(outcome string) { tokenRefreshTotal.WithLabelValues(outcome).Inc() }

func SetReadinessScore(score float64) { readinessScore.Set(score) }
func IncAssessment(grade string)      { assessmentsTotal.WithLabelValues(grade).Inc() }

func IncCacheOp(backend, op string) { cacheOpsTotal.WithLabelValues(backend, op).Inc() }
