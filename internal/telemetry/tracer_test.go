package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestNewProviderDisabled(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("disabled provider: %v", err)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("noop shutdown: %v", err)
	}

	// The noop provider must still hand out usable tracers.
	_, span := Tracer("test").Start(context.Background(), "op")
	span.End()
}

func TestNewProviderRejectsUnknownExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{
		Enabled:      true,
		ServiceName:  "pulse",
		ExporterType: "carrier-pigeon",
	})
	if err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}

func findAttr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestHTTPAttributes(t *testing.T) {
	attrs := HTTPAttributes("GET", "/api/v1/status", 200)
	if len(attrs) != 3 {
		t.Fatalf("len = %d", len(attrs))
	}
	if v, ok := findAttr(attrs, HTTPRouteKey); !ok || v.AsString() != "/api/v1/status" {
		t.Errorf("route attr = %v", v)
	}
	if v, ok := findAttr(attrs, HTTPStatusCodeKey); !ok || v.AsInt64() != 200 {
		t.Errorf("status attr = %v", v)
	}
}

func TestSyncAttributesOmitsEmptyOutcome(t *testing.T) {
	if got := SyncAttributes("id-1", 14, ""); len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
	attrs := SyncAttributes("id-1", 14, "partial")
	if v, ok := findAttr(attrs, SyncOutcomeKey); !ok || v.AsString() != "partial" {
		t.Errorf("outcome attr = %v", v)
	}
}

func TestAssessmentAttributes(t *testing.T) {
	attrs := AssessmentAttributes("2026-08-31", "ready", 72)
	if v, ok := findAttr(attrs, GradeKey); !ok || v.AsString() != "ready" {
		t.Errorf("grade attr = %v", v)
	}
	if v, ok := findAttr(attrs, ScoreKey); !ok || v.AsInt64() != 72 {
		t.Errorf("score attr = %v", v)
	}
}
