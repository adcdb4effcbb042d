package core

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	if rec.Name() == "" {
		t.Fatalf("expected a generated export name")
	}
	ctx := context.Background()

	rec.Observe(ctx, "anonymize", true, 20*time.Millisecond)
	rec.Observe(ctx, "anonymize", true, 30*time.Millisecond)
	rec.Observe(ctx, "anonymize", false, 5*time.Millisecond)
	rec.Observe(ctx, "", true, time.Millisecond) // ignored

	snap := rec.Snapshot()
	if snap.DurationsMS["anonymize"] != 55 {
		t.Fatalf("durations = %g, want 55", snap.DurationsMS["anonymize"])
	}
	if snap.Results["anonymize"]["success"] != 2 || snap.Results["anonymize"]["error"] != 1 {
		t.Fatalf("unexpected result counters: %v", snap.Results)
	}
	if len(snap.DurationsMS) != 1 {
		t.Fatalf("empty operation names must not be recorded")
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	ctx := context.Background()
	rec.Observe(ctx, "anonymize", true, 10*time.Millisecond)
	rec.Observe(ctx, "anonymize", false, 10*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	if !names["deident_operation_duration_seconds"] || !names["deident_operation_results_total"] {
		t.Fatalf("expected deident metric families, got %v", names)
	}

	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}
