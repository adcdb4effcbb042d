// Package memory provides the in-process reference implementation of the
// run store, used by tests and as the default CLI backend.
package memory

import (
	"context"
	"sort"
	"sync"

	"deident/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.RunStore = (*Store)(nil)

// Store keeps run records in process memory. Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	runs map[string]domain.RunRecord
}

// NewStore constructs an empty in-memory run store.
func NewStore() *Store {
	return &Store{runs: make(map[string]domain.RunRecord)}
}

// SaveRun inserts or replaces the record under its ID.
func (s *Store) SaveRun(_ context.Context, rec domain.RunRecord) (domain.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[rec.ID] = rec
	return rec, nil
}

// GetRun returns the record with the given ID, if present.
func (s *Store) GetRun(_ context.Context, id string) (domain.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[id]
	return rec, ok, nil
}

// ListRuns returns all records ordered by creation time, then ID.
func (s *Store) ListRuns(context.Context) ([]domain.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.RunRecord, 0, len(s.runs))
	for _, rec := range s.runs {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteRun removes the record with the given ID.
func (s *Store) DeleteRun(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[id]; !ok {
		return domain.ErrRunNotFound{ID: id}
	}
	delete(s.runs, id)
	return nil
}
