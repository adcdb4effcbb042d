package core

import (
	"context"
	"testing"
	"time"

	"deident/internal/dataset"
	"deident/internal/hierarchy"
	"deident/pkg/domain"
)

type captureStore struct {
	saved []RunRecord
}

func (c *captureStore) SaveRun(_ context.Context, rec RunRecord) (RunRecord, error) {
	c.saved = append(c.saved, rec)
	return rec, nil
}

func (c *captureStore) GetRun(context.Context, string) (RunRecord, bool, error) {
	return RunRecord{}, false, nil
}

func (c *captureStore) ListRuns(context.Context) ([]RunRecord, error) { return nil, nil }

func (c *captureStore) DeleteRun(context.Context, string) error { return nil }

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

func fixtureJob(t *testing.T, metric string, privacy PrivacyConfig) Job {
	t.Helper()
	ds, err := dataset.FromRecords(
		[]string{"age", "zip", "disease"},
		[][]string{
			{"34", "81667", "flu"},
			{"45", "81675", "cold"},
			{"66", "81925", "flu"},
			{"70", "81931", "cold"},
			{"34", "81667", "asthma"},
			{"70", "81931", "flu"},
		},
	)
	if err != nil {
		t.Fatalf("dataset: %v", err)
	}
	age, err := hierarchy.New("age", [][]string{
		{"34", "<=50", "*"},
		{"45", "<=50", "*"},
		{"66", ">50", "*"},
		{"70", ">50", "*"},
	})
	if err != nil {
		t.Fatalf("age hierarchy: %v", err)
	}
	zip, err := hierarchy.New("zip", [][]string{
		{"81667", "8166*", "8****"},
		{"81675", "8167*", "8****"},
		{"81925", "8192*", "8****"},
		{"81931", "8193*", "8****"},
	})
	if err != nil {
		t.Fatalf("zip hierarchy: %v", err)
	}
	return Job{
		Name:             "patients",
		Dataset:          ds,
		DatasetRef:       "inline",
		QuasiIdentifiers: []string{"age", "zip"},
		Hierarchies:      map[string]*hierarchy.Hierarchy{"age": age, "zip": zip},
		Privacy:          privacy,
		Metric:           metric,
	}
}

func TestAnonymizeMonotonicMetricFindsOptimum(t *testing.T) {
	store := &captureStore{}
	metrics := &captureMetricsRecorder{}
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	svc := NewService(store,
		WithMetricsRecorder(metrics),
		WithClock(func() time.Time { return now }),
	)

	job := fixtureJob(t, "height", PrivacyConfig{K: 2, CriterionMonotonic: true})
	result, err := svc.Anonymize(context.Background(), job)
	if err != nil {
		t.Fatalf("anonymize: %v", err)
	}

	want := domain.Transformation{1, 2}
	if !result.Optimum.Equal(want) {
		t.Fatalf("optimum = %v, want %v", result.Optimum, want)
	}
	if result.OptimumLoss != 0.75 {
		t.Fatalf("optimum loss = %g, want 0.75", result.OptimumLoss)
	}
	if result.SuppressedRecords != 0 {
		t.Fatalf("no records may be suppressed at the optimum")
	}
	if result.LatticeSize != 9 {
		t.Fatalf("lattice size = %d, want 9", result.LatticeSize)
	}
	if result.CheckedNodes == 0 || result.CheckedNodes >= result.LatticeSize {
		t.Fatalf("checked %d of %d nodes, expected a strict subset", result.CheckedNodes, result.LatticeSize)
	}

	if len(store.saved) != 1 {
		t.Fatalf("expected one persisted run, got %d", len(store.saved))
	}
	rec := store.saved[0]
	if rec.Name != "patients" || !rec.Optimum.Equal(want) || !rec.CreatedAt.Equal(now) {
		t.Fatalf("unexpected run record: %+v", rec)
	}
	if !metrics.has("anonymize", true) {
		t.Fatalf("expected a success observation for anonymize")
	}
}

func TestAnonymizeDependentMetricRunsTwoPhase(t *testing.T) {
	svc := NewService(nil)
	job := fixtureJob(t, "aecs", PrivacyConfig{K: 2, CriterionMonotonic: true})

	result, err := svc.Anonymize(context.Background(), job)
	if err != nil {
		t.Fatalf("anonymize: %v", err)
	}
	want := domain.Transformation{1, 2}
	if !result.Optimum.Equal(want) {
		t.Fatalf("optimum = %v, want %v", result.Optimum, want)
	}
	if result.OptimumLoss != 3 {
		t.Fatalf("optimum loss = %g, want 3", result.OptimumLoss)
	}
}

func TestAnonymizeNonMonotonicCriterionFallsBackToLinear(t *testing.T) {
	svc := NewService(nil)
	job := fixtureJob(t, "height", PrivacyConfig{K: 2, CriterionMonotonic: false})

	result, err := svc.Anonymize(context.Background(), job)
	if err != nil {
		t.Fatalf("anonymize: %v", err)
	}
	want := domain.Transformation{1, 2}
	if !result.Optimum.Equal(want) {
		t.Fatalf("optimum = %v, want %v", result.Optimum, want)
	}
	// Every node gets a full check when nothing can be inferred.
	if result.CheckedNodes != result.LatticeSize {
		t.Fatalf("checked %d of %d nodes, expected all", result.CheckedNodes, result.LatticeSize)
	}
	if result.TaggedNodes != 0 {
		t.Fatalf("no predictive tagging without monotonicity, got %d", result.TaggedNodes)
	}
}

func TestAnonymizeRejectsIncompleteJobs(t *testing.T) {
	svc := NewService(nil)
	metrics := &captureMetricsRecorder{}
	svcWithMetrics := NewService(nil, WithMetricsRecorder(metrics))
	ctx := context.Background()

	job := fixtureJob(t, "height", PrivacyConfig{K: 2, CriterionMonotonic: true})
	job.Dataset = nil
	if _, err := svc.Anonymize(ctx, job); err == nil {
		t.Fatalf("expected error for missing dataset")
	}

	job = fixtureJob(t, "height", PrivacyConfig{K: 2, CriterionMonotonic: true})
	delete(job.Hierarchies, "zip")
	if _, err := svcWithMetrics.Anonymize(ctx, job); err == nil {
		t.Fatalf("expected error for missing hierarchy")
	}
	if !metrics.has("anonymize", false) {
		t.Fatalf("expected an error observation for anonymize")
	}

	job = fixtureJob(t, "entropy", PrivacyConfig{K: 2, CriterionMonotonic: true})
	if _, err := svc.Anonymize(ctx, job); err == nil {
		t.Fatalf("expected error for unknown metric")
	}
}

func TestBuildRelease(t *testing.T) {
	job := fixtureJob(t, "height", PrivacyConfig{K: 2, CriterionMonotonic: true})

	release, err := BuildRelease(job, Transformation{1, 2})
	if err != nil {
		t.Fatalf("build release: %v", err)
	}
	if release.Suppressed != 0 || len(release.Records) != 6 {
		t.Fatalf("expected 6 records and no suppression, got %d/%d", len(release.Records), release.Suppressed)
	}
	first := release.Records[0]
	if first[0] != "<=50" || first[1] != "8****" || first[2] != "flu" {
		t.Fatalf("unexpected released record: %v", first)
	}

	release, err = BuildRelease(job, Transformation{0, 0})
	if err != nil {
		t.Fatalf("build release: %v", err)
	}
	if release.Suppressed != 2 || len(release.Records) != 4 {
		t.Fatalf("expected 4 records and 2 suppressed, got %d/%d", len(release.Records), release.Suppressed)
	}

	if _, err := BuildRelease(job, Transformation{1}); err == nil {
		t.Fatalf("expected error for transformation arity mismatch")
	}
}
