// Package check implements the expensive side of the search: the k-anonymity
// evaluation of a transformation over the encoded dataset, the information
// loss metrics, and the trigger-driven history cache of partial computations.
package check

import (
	"fmt"

	"deident/pkg/domain"
)

// Metric scores the information loss of a transformation; lower is better.
// Scores are normalized to [0,1] where the metric permits.
type Metric interface {
	Name() string
	// Monotonic reports whether loss is non-decreasing along generalization
	// paths.
	Monotonic() bool
	// Independent reports whether the score can be computed from the
	// transformation alone, without the anonymity check.
	Independent() bool
	// Evaluate scores an independent metric. Dependent metrics return an
	// error.
	Evaluate(t domain.Transformation) (float64, error)
	// EvaluateClasses scores the transformation given the equivalence
	// classes produced by a full check.
	EvaluateClasses(t domain.Transformation, classes []Class, suppressed, rows int) float64
}

// NewMetric resolves a metric by name for the given hierarchy heights.
func NewMetric(name string, heights []int) (Metric, error) {
	switch name {
	case "height", "":
		return heightMetric{heights: heights}, nil
	case "precision":
		return precisionMetric{heights: heights}, nil
	case "aecs":
		return aecsMetric{}, nil
	default:
		return nil, fmt.Errorf("metric: unknown metric %q", name)
	}
}

// heightMetric scores the normalized sum of generalization levels.
// Monotonic and independent: the cheapest possible metric.
type heightMetric struct {
	heights []int
}

func (heightMetric) Name() string      { return "height" }
func (heightMetric) Monotonic() bool   { return true }
func (heightMetric) Independent() bool { return true }

func (m heightMetric) Evaluate(t domain.Transformation) (float64, error) {
	total := 0
	for _, h := range m.heights {
		total += h
	}
	if total == 0 {
		return 0, nil
	}
	return float64(t.Level()) / float64(total), nil
}

func (m heightMetric) EvaluateClasses(t domain.Transformation, _ []Class, _, _ int) float64 {
	loss, _ := m.Evaluate(t)
	return loss
}

// precisionMetric scores the mean relative generalization per attribute
// (Sweeney's precision, inverted so that lower is better).
type precisionMetric struct {
	heights []int
}

func (precisionMetric) Name() string      { return "precision" }
func (precisionMetric) Monotonic() bool   { return true }
func (precisionMetric) Independent() bool { return true }

func (m precisionMetric) Evaluate(t domain.Transformation) (float64, error) {
	if len(t) == 0 {
		return 0, nil
	}
	sum := 0.0
	for i, level := range t {
		if m.heights[i] == 0 {
			continue
		}
		sum += float64(level) / float64(m.heights[i])
	}
	return sum / float64(len(t)), nil
}

func (m precisionMetric) EvaluateClasses(t domain.Transformation, _ []Class, _, _ int) float64 {
	loss, _ := m.Evaluate(t)
	return loss
}

// aecsMetric scores the average equivalence class size of the released
// records. It needs the groupify result, so it is dependent, and suppression
// makes it non-monotone along generalization paths.
type aecsMetric struct{}

func (aecsMetric) Name() string      { return "aecs" }
func (aecsMetric) Monotonic() bool   { return false }
func (aecsMetric) Independent() bool { return false }

func (aecsMetric) Evaluate(domain.Transformation) (float64, error) {
	return 0, fmt.Errorf("metric: aecs requires equivalence classes")
}

func (aecsMetric) EvaluateClasses(_ domain.Transformation, classes []Class, suppressed, rows int) float64 {
	released := rows - suppressed
	kept := 0
	for _, c := range classes {
		if !c.Outlier {
			kept++
		}
	}
	if kept == 0 || released <= 0 {
		return float64(rows)
	}
	return float64(released) / float64(kept)
}
