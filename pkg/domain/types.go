// Package domain defines the shared value types and contracts used across
// deident: transformation schemes, privacy parameters, run results, and the
// persistence and observability interfaces implemented by infra adapters.
package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Transformation is a full-domain generalization scheme: one hierarchy level
// per quasi-identifying attribute, in attribute order.
type Transformation []int

// Clone returns an independent copy of the transformation.
func (t Transformation) Clone() Transformation {
	out := make(Transformation, len(t))
	copy(out, t)
	return out
}

// Equal reports whether both transformations generalize every attribute to
// the same level.
func (t Transformation) Equal(other Transformation) bool {
	if len(t) != len(other) {
		return false
	}
	for i := range t {
		if t[i] != other[i] {
			return false
		}
	}
	return true
}

// Level returns the sum of per-attribute levels, which is the node's level in
// the generalization lattice.
func (t Transformation) Level() int {
	sum := 0
	for _, l := range t {
		sum += l
	}
	return sum
}

// Subordinate reports whether t generalizes no attribute further than other.
// It is the partial order of the lattice: t <= other componentwise.
func (t Transformation) Subordinate(other Transformation) bool {
	if len(t) != len(other) {
		return false
	}
	for i := range t {
		if t[i] > other[i] {
			return false
		}
	}
	return true
}

// Key returns a stable string form usable as a map key.
func (t Transformation) Key() string {
	parts := make([]string, len(t))
	for i, l := range t {
		parts[i] = strconv.Itoa(l)
	}
	return strings.Join(parts, ",")
}

// String renders the transformation in bracketed vector form.
func (t Transformation) String() string {
	return "[" + t.Key() + "]"
}

// PrivacyConfig holds the active anonymization parameters.
type PrivacyConfig struct {
	// K is the minimum equivalence class size (k-anonymity).
	K int `json:"k"`
	// SuppressionLimit is the maximum fraction of records that may be
	// suppressed; zero means no suppression at all.
	SuppressionLimit float64 `json:"suppression_limit"`
	// CriterionMonotonic marks the active criterion as monotone along
	// generalization paths. K-anonymity is monotone; callers wiring custom
	// criteria may clear this to force the linear-only search mode.
	CriterionMonotonic bool `json:"criterion_monotonic"`
}

// Validate reports the first invalid privacy parameter, if any.
func (c PrivacyConfig) Validate() error {
	if c.K < 2 {
		return fmt.Errorf("privacy: k must be at least 2, got %d", c.K)
	}
	if c.SuppressionLimit < 0 || c.SuppressionLimit >= 1 {
		return fmt.Errorf("privacy: suppression limit must be in [0,1), got %g", c.SuppressionLimit)
	}
	return nil
}

// RunResult summarizes a finished anonymization run.
type RunResult struct {
	// Optimum is the least-loss anonymous transformation, nil when the
	// lattice contains no anonymous node under the active parameters.
	Optimum Transformation `json:"optimum,omitempty"`
	// OptimumLoss is the information loss of the optimum.
	OptimumLoss float64 `json:"optimum_loss"`
	// SuppressedRecords counts records removed from the released output.
	SuppressedRecords int `json:"suppressed_records"`
	// CheckedNodes counts full checker invocations during the search.
	CheckedNodes int `json:"checked_nodes"`
	// TaggedNodes counts nodes resolved by predictive tagging alone.
	TaggedNodes int `json:"tagged_nodes"`
	// LatticeSize is the total number of candidate transformations.
	LatticeSize int `json:"lattice_size"`
	// Duration is the wall-clock search time.
	Duration time.Duration `json:"duration"`
}

// RunRecord is the persisted form of a run, stored by RunStore backends.
type RunRecord struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	Dataset          string         `json:"dataset"`
	K                int            `json:"k"`
	SuppressionLimit float64        `json:"suppression_limit"`
	Metric           string         `json:"metric"`
	Optimum          Transformation `json:"optimum,omitempty"`
	OptimumLoss      float64        `json:"optimum_loss"`
	CheckedNodes     int            `json:"checked_nodes"`
	LatticeSize      int            `json:"lattice_size"`
	CreatedAt        time.Time      `json:"created_at"`
}
