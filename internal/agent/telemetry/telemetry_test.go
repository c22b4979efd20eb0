package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/ahalansari/deep-search/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDisabledTelemetryIsNilSafe(t *testing.T) {
	tele := NewTelemetry(config.TelemetryConfig{Enabled: false}, prometheus.NewRegistry())
	if tele != nil {
		t.Fatalf("expected nil telemetry when disabled")
	}
	tele.RecordSearch(true, 0, time.Second)
	tele.RecordCompletion(false, time.Second)
	tele.RecordVerdict("heuristic", false)
	tele.RecordSession("answered", 3, 10, time.Second)
	tele.ProgressDropped()
}

func TestRecordSearchAndVerdict(t *testing.T) {
	reg := prometheus.NewRegistry()
	tele := NewTelemetry(config.TelemetryConfig{Enabled: true, Namespace: "test"}, reg)

	tele.RecordSearch(false, 8, 200*time.Millisecond)
	tele.RecordSearch(true, 0, 15*time.Second)
	tele.RecordSearch(true, 0, 15*time.Second)
	tele.RecordVerdict("model", true)

	if got := testutil.ToFloat64(tele.searches.WithLabelValues("degraded")); got != 2 {
		t.Fatalf("degraded searches = %v, want 2", got)
	}
	if got := testutil.ToFloat64(tele.searches.WithLabelValues("ok")); got != 1 {
		t.Fatalf("ok searches = %v, want 1", got)
	}
	if got := testutil.ToFloat64(tele.verdicts.WithLabelValues("model", "true")); got != 1 {
		t.Fatalf("model verdicts = %v, want 1", got)
	}
	if n, err := testutil.GatherAndCount(reg, "test_search_requests_total"); err != nil || n != 2 {
		t.Fatalf("expected two labelled series, got %d (%v)", n, err)
	}
}

func TestSetupTracingExporters(t *testing.T) {
	ctx := context.Background()
	shutdown, err := SetupTracing(ctx, config.TelemetryConfig{TraceExporter: "none"})
	if err != nil {
		t.Fatalf("none exporter: %v", err)
	}
	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	shutdown, err = SetupTracing(ctx, config.TelemetryConfig{TraceExporter: "stdout", Namespace: "test"})
	if err != nil {
		t.Fatalf("stdout exporter: %v", err)
	}
	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if _, err := SetupTracing(ctx, config.TelemetryConfig{TraceExporter: "zipkin"}); err == nil {
		t.Fatalf("expected error for unknown exporter")
	}
}
