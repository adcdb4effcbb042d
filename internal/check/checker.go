package check

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"deident/internal/dataset"
	"deident/internal/hierarchy"
	"deident/internal/lattice"
	"deident/internal/search"
	"deident/pkg/domain"
)

// Class is one equivalence class of a groupify pass: records
// indistinguishable under the active transformation.
type Class struct {
	// Rep holds the original (level-0) quasi-identifier codes of the first
	// member. Re-generalizing the representative under a more general
	// transformation reproduces the class key there, which is what makes
	// history snapshots reusable.
	Rep []int
	// Count is the number of member records.
	Count int
	// Outlier marks classes below the minimum size, i.e. candidates for
	// suppression.
	Outlier bool
}

// Checker evaluates k-anonymity of transformations over a dictionary-encoded
// dataset. It satisfies the search engine's checker contract.
type Checker struct {
	rows        [][]int // quasi-identifier projection, original codes
	hierarchies []*hierarchy.Materialized
	privacy     domain.PrivacyConfig
	metric      Metric
	history     *History

	checked int
}

var _ search.Checker = (*Checker)(nil)

// New projects the dataset onto the quasi-identifiers, materializes their
// hierarchies against the column dictionaries, and wires the history cache.
func New(ds *dataset.Dataset, qis []string, hs map[string]*hierarchy.Hierarchy, privacy domain.PrivacyConfig, metric Metric, history *History) (*Checker, error) {
	if err := privacy.Validate(); err != nil {
		return nil, err
	}
	if len(qis) == 0 {
		return nil, fmt.Errorf("check: at least one quasi-identifier required")
	}

	cols := make([]int, len(qis))
	mats := make([]*hierarchy.Materialized, len(qis))
	for i, qi := range qis {
		col, ok := ds.ColumnIndex(qi)
		if !ok {
			return nil, fmt.Errorf("check: quasi-identifier %q not in dataset", qi)
		}
		cols[i] = col
		h, ok := hs[qi]
		if !ok {
			return nil, fmt.Errorf("check: no hierarchy for quasi-identifier %q", qi)
		}
		mat, err := h.Materialize(ds.Dictionary(col))
		if err != nil {
			return nil, err
		}
		mats[i] = mat
	}

	rows := make([][]int, ds.Rows())
	for r := range rows {
		row := make([]int, len(cols))
		for i, col := range cols {
			row[i] = ds.Row(r)[col]
		}
		rows[r] = row
	}

	return &Checker{
		rows:        rows,
		hierarchies: mats,
		privacy:     privacy,
		metric:      metric,
		history:     history,
	}, nil
}

// Heights returns the per-attribute hierarchy heights, the input to the
// lattice builder.
func (c *Checker) Heights() []int {
	heights := make([]int, len(c.hierarchies))
	for i, h := range c.hierarchies {
		heights[i] = h.Height()
	}
	return heights
}

// Rows returns the number of records under evaluation.
func (c *Checker) Rows() int { return len(c.rows) }

// Checked returns the number of full checks performed so far.
func (c *Checker) Checked() int { return c.checked }

// Metric returns the active loss metric.
func (c *Checker) Metric() Metric { return c.metric }

/// Check fully evaluates the node: groupify, suppression accounting,
// anonymity decision, and loss scoring. The resulting classes may be stored
// in the history cache per the active store trigger.
func (c *Checker) Check(ctx context.Context, node *lattice.Node, forceSnapshot bool) (search.CheckResult, error) {
	if err := ctx.Err(); err != nil {
		return search.CheckResult{}, err
	}
	c.checked++

	t := node.Transformation()
	classes := c.Partition(t)

	outliers := 0
	for i := range classes {
		if classes[i].Count < c.privacy.K {
			classes[i].Outlier = true
			outliers += classes[i].Count
		}
	}
	limit := int(c.privacy.SuppressionLimit * float64(len(c.rows)))
	anonymous := outliers <= limit

	var loss float64
	if c.metric.Independent() {
		var err error
		loss, err = c.metric.Evaluate(t)
		if err != nil {
			return search.CheckResult{}, err
		}
	} else {
		suppressed := 0
		if anonymous {
			suppressed = outliers
		}
		loss = c.metric.EvaluateClasses(t, classes, suppressed, len(c.rows))
	}

	if c.history != nil {
		c.history.Store(node, classes, forceSnapshot)
	}
	return search.CheckResult{Anonymous: anonymous, InformationLoss: loss}, nil
}

// EvaluateLoss computes the metric score without the anonymity check. Only
// valid for independent metrics.
func (c *Checker) EvaluateLoss(node *lattice.Node) (float64, error) {
	return c.metric.Evaluate(node.Transformation())
}

// MetricMonotonic implements search.Checker.
func (c *Checker) MetricMonotonic() bool { return c.metric.Monotonic() }

// CriterionMonotonic reports whether the active criterion is monotone along
// generalization paths.
func (c *Checker) CriterionMonotonic() bool { return c.privacy.CriterionMonotonic }

// MetricIndependent implements search.Checker.
func (c *Checker) MetricIndependent() bool { return c.metric.Independent() }

// MaxOutlierFraction implements search.Checker.
func (c *Checker) MaxOutlierFraction() float64 { return c.privacy.SuppressionLimit }

// History implements search.Checker. It is nil-safe for checkers built
// without a cache.
func (c *Checker) History() search.SnapshotPolicy {
	if c.history == nil {
		return noPolicy{}
	}
	return c.history
}

// Partition groups the records by their generalized quasi-identifier values
// under t. When the history cache holds a snapshot of a subordinate
// transformation, grouping restarts from that snapshot's class
// representatives instead of the raw records.
func (c *Checker) Partition(t domain.Transformation) []Class {
	if c.history != nil {
		if classes, ok := c.history.Retrieve(t); ok {
			return c.regroup(t, classes)
		}
	}
	groups := make(map[string]*Class, len(c.rows)/2+1)
	order := make([]string, 0, len(c.rows)/2+1)
	for _, row := range c.rows {
		key := c.key(t, row)
		if g, ok := groups[key]; ok {
			g.Count++
			continue
		}
		groups[key] = &Class{Rep: row, Count: 1}
		order = append(order, key)
	}
	out := make([]Class, 0, len(order))
	for _, key := range order {
		out = append(out, *groups[key])
	}
	return out
}

// regroup merges a subordinate snapshot's classes under the more general
// transformation t. Valid because each hierarchy level is a function of the
// level-0 value: members of one snapshot class land in one class under t.
func (c *Checker) regroup(t domain.Transformation, snapshot []Class) []Class {
	groups := make(map[string]*Class, len(snapshot))
	order := make([]string, 0, len(snapshot))
	for _, class := range snapshot {
		key := c.key(t, class.Rep)
		if g, ok := groups[key]; ok {
			g.Count += class.Count
			continue
		}
		groups[key] = &Class{Rep: class.Rep, Count: class.Count}
		order = append(order, key)
	}
	out := make([]Class, 0, len(order))
	for _, key := range order {
		out = append(out, *groups[key])
	}
	return out
}

func (c *Checker) key(t domain.Transformation, row []int) string {
	var b strings.Builder
	for i, code := range row {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(strconv.Itoa(c.hierarchies[i].Map(code, t[i])))
	}
	return b.String()
}

// noPolicy is the inert policy surface of a cache-less checker.
type noPolicy struct{}

func (noPolicy) SetStoreTrigger(search.Trigger) {}
func (noPolicy) SetEvictTrigger(search.Trigger) {}
