package telemetry

import "go.opentelemetry.io/otel/attribute"

// Attribute keys used across pulse spans.
const (
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	SyncIDKey      = "sync.id"
	SyncDaysKey    = "sync.days"
	SyncOutcomeKey = "sync.outcome"

	SignalKey = "biometrics.signal"
	DayKey    = "biometrics.day"

	GradeKey = "coach.grade"
	ScoreKey = "coach.score"
)

// HTTPAttributes builds span attributes for one API request.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// SyncAttributes builds span attributes for one sync run.
func SyncAttributes(syncID string, days int, outcome string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(SyncIDKey, syncID),
		attribute.Int(SyncDaysKey, days),
	}
	if outcome != "" {
		attrs = append(attrs, attribute.String(SyncOutcomeKey, outcome))
	}
	return attrs
}

// AssessmentAttributes builds span attributes for one coach assessment.
func AssessmentAttributes(day, grade string, score int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(DayKey, day),
		attribute.String(GradeKey, grade),
		attribute.Int(ScoreKey, score),
	}
}
