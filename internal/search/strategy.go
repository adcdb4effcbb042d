package search

import "deident/internal/lattice"

// Strategy is a total order over lattice nodes. It prioritizes the shared
// work queue and fixes successor exploration order, so it must be
// deterministic: ties broken by the transformation vector, never by identity.
type Strategy interface {
	// Compare returns a negative value when a should be visited before b,
	// positive when after, and zero only for the same transformation.
	Compare(a, b *lattice.Node) int
}

// LevelStrategy is the default ordering: prefer nodes with a lower mean
// relative generalization (level divided by hierarchy height, averaged over
// attributes), then lower lattice level, then the lexicographically smaller
// transformation. Attributes with shallow hierarchies are generalized last.
type LevelStrategy struct {
	heights []int
}

// NewLevelStrategy builds the default strategy for the given per-attribute
// hierarchy heights.
func NewLevelStrategy(heights []int) *LevelStrategy {
	return &LevelStrategy{heights: heights}
}

// Compare implements Strategy.
func (s *LevelStrategy) Compare(a, b *lattice.Node) int {
	ra, rb := s.relative(a), s.relative(b)
	switch {
	case ra < rb:
		return -1
	case ra > rb:
		return 1
	}
	if a.Level() != b.Level() {
		return a.Level() - b.Level()
	}
	ta, tb := a.Transformation(), b.Transformation()
	for i := range ta {
		if ta[i] != tb[i] {
			return ta[i] - tb[i]
		}
	}
	return 0
}

func (s *LevelStrategy) relative(n *lattice.Node) float64 {
	t := n.Transformation()
	sum := 0.0
	for i, level := range t {
		if s.heights[i] == 0 {
			continue
		}
		sum += float64(level) / float64(s.heights[i])
	}
	return sum / float64(len(t))
}
