// Package hierarchy models per-attribute generalization hierarchies: for each
// original value, the chain of increasingly general values ending in a
// single root. Hierarchies are rectangular tables read from CSV, one row per
// original value, one column per level.
package hierarchy

import (
	"encoding/csv"
	"fmt"
	"io"

	"deident/internal/dataset"
)

// Hierarchy is the raw generalization table for one attribute.
type Hierarchy struct {
	attribute string
	rows      [][]string
	height    int
}

// New validates and wraps a generalization table. Every row must carry the
// same number of levels and start with the original value at level 0.
func New(attribute string, rows [][]string) (*Hierarchy, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("hierarchy %q: no rows", attribute)
	}
	width := len(rows[0])
	if width < 1 {
		return nil, fmt.Errorf("hierarchy %q: rows need at least one level", attribute)
	}
	seen := make(map[string]struct{}, len(rows))
	for i, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("hierarchy %q: row %d has %d levels, want %d", attribute, i+1, len(row), width)
		}
		if _, dup := seen[row[0]]; dup {
			return nil, fmt.Errorf("hierarchy %q: duplicate value %q", attribute, row[0])
		}
		seen[row[0]] = struct{}{}
	}
	return &Hierarchy{attribute: attribute, rows: rows, height: width - 1}, nil
}

// ReadCSV reads a hierarchy table from CSV, without a header row.
func ReadCSV(attribute string, r io.Reader) (*Hierarchy, error) {
	cr := csv.NewReader(r)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("hierarchy %q: read csv: %w", attribute, err)
	}
	return New(attribute, rows)
}

// Attribute returns the attribute name this hierarchy generalizes.
func (h *Hierarchy) Attribute() string { return h.attribute }

// Height returns the maximum generalization level.
func (h *Hierarchy) Height() int { return h.height }

// Generalize returns the value of v at the given level, or an error when the
// value is not covered by the hierarchy.
func (h *Hierarchy) Generalize(v string, level int) (string, error) {
	if level < 0 || level > h.height {
		return "", fmt.Errorf("hierarchy %q: level %d out of range [0,%d]", h.attribute, level, h.height)
	}
	for _, row := range h.rows {
		if row[0] == v {
			return row[level], nil
		}
	}
	return "", fmt.Errorf("hierarchy %q: value %q not covered", h.attribute, v)
}

// Materialized is a hierarchy compiled against a column dictionary: level
// lookup tables from original value codes to generalized value codes. The
// generalized codes live in the same dictionary, extended as needed.
type Materialized struct {
	attribute string
	height    int
	// levels[l][code] is the code of the level-l generalization of code.
	levels [][]int
}

// Materialize compiles the hierarchy against the given column dictionary.
// Every distinct value present in the dictionary must be covered.
func (h *Hierarchy) Materialize(dict *dataset.Dictionary) (*Materialized, error) {
	originals := dict.Size()
	m := &Materialized{
		attribute: h.attribute,
		height:    h.height,
		levels:    make([][]int, h.height+1),
	}
	index := make(map[string][]string, len(h.rows))
	for _, row := range h.rows {
		index[row[0]] = row
	}
	for l := 0; l <= h.height; l++ {
		m.levels[l] = make([]int, originals)
		for code := 0; code < originals; code++ {
			row, ok := index[dict.Value(code)]
			if !ok {
				return nil, fmt.Errorf("hierarchy %q: value %q not covered", h.attribute, dict.Value(code))
			}
			m.levels[l][code] = dict.Encode(row[l])
		}
	}
	return m, nil
}

// Attribute returns the attribute name.
func (m *Materialized) Attribute() string { return m.attribute }

// Height returns the maximum generalization level.
func (m *Materialized) Height() int { return m.height }

// Map returns the generalized code of an original value code at level.
func (m *Materialized) Map(code, level int) int {
	return m.levels[level][code]
}
