package search

import (
	"context"

	"deident/internal/lattice"
)

// CheckResult is the outcome of a full anonymity check.
type CheckResult struct {
	// Anonymous reports whether the transformation satisfies the active
	// criterion, suppression limit included.
	Anonymous bool
	// InformationLoss is the metric score of the transformation.
	InformationLoss float64
}

// SnapshotPolicy is the trigger-driven surface of the checker's history
// cache. The engine installs the active phase's triggers at every phase
// boundary; the cache's storage mechanics stay internal to the checker.
type SnapshotPolicy interface {
	SetStoreTrigger(Trigger)
	SetEvictTrigger(Trigger)
}

// Checker performs the expensive anonymity evaluation of a single node and
// exposes the metric classification the engine needs for phase selection and
// top-node inference. Check faults are fatal to the run.
type Checker interface {
	// Check fully evaluates the node. forceSnapshot requests that the
	// resulting partial state be retained in the history cache regardless of
	// the store trigger.
	Check(ctx context.Context, node *lattice.Node, forceSnapshot bool) (CheckResult, error)
	// EvaluateLoss computes the information loss without the anonymity
	// check. Only valid for metrics independent of the check.
	EvaluateLoss(node *lattice.Node) (float64, error)
	// MetricMonotonic reports whether loss is non-decreasing along
	// generalization paths.
	MetricMonotonic() bool
	// MetricIndependent reports whether loss can be computed without the
	// anonymity check.
	MetricIndependent() bool
	// MaxOutlierFraction returns the configured suppression limit.
	MaxOutlierFraction() float64
	// History exposes the snapshot cache policy surface.
	History() SnapshotPolicy
}
