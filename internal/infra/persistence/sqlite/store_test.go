package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"deident/pkg/domain"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	rec := domain.RunRecord{
		ID:          "run-1",
		Name:        "patients",
		Dataset:     "patients.csv",
		K:           2,
		Metric:      "height",
		Optimum:     domain.Transformation{1, 2},
		OptimumLoss: 0.75,
		CreatedAt:   time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC),
	}
	if _, err := store.SaveRun(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := store.GetRun(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Name != rec.Name || !got.Optimum.Equal(rec.Optimum) || got.OptimumLoss != rec.OptimumLoss {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Fatalf("created at mismatch: %v", got.CreatedAt)
	}

	if _, ok, err := store.GetRun(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing run: ok=%v err=%v", ok, err)
	}
}

func TestStoreListOrdersByCreation(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	base := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	for _, rec := range []domain.RunRecord{
		{ID: "run-b", CreatedAt: base.Add(time.Hour)},
		{ID: "run-a", CreatedAt: base},
	} {
		if _, err := store.SaveRun(ctx, rec); err != nil {
			t.Fatalf("save %s: %v", rec.ID, err)
		}
	}
	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-a" || runs[1].ID != "run-b" {
		t.Fatalf("unexpected order: %+v", runs)
	}
}

func TestStoreSaveReplacesAndDelete(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	rec := domain.RunRecord{ID: "run-1", K: 2}
	if _, err := store.SaveRun(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	rec.K = 5
	if _, err := store.SaveRun(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, _, _ := store.GetRun(ctx, "run-1")
	if got.K != 5 {
		t.Fatalf("expected replacement, got %+v", got)
	}

	if err := store.DeleteRun(ctx, "run-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var notFound domain.ErrRunNotFound
	if err := store.DeleteRun(ctx, "run-1"); !errors.As(err, &notFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}
