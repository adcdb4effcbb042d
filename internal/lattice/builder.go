package lattice

import (
	"fmt"

	"deident/pkg/domain"
)

// Build materializes the full generalization lattice for the given
// per-attribute hierarchy heights. A height of h yields levels 0..h for that
// attribute; the lattice is the cartesian product of all attribute levels,
// with successor edges between transformations differing by +1 in exactly one
// component.
func Build(heights []int) (*Lattice, error) {
	if len(heights) == 0 {
		return nil, fmt.Errorf("lattice: at least one attribute required")
	}
	size := 1
	maxLevel := 0
	for i, h := range heights {
		if h < 0 {
			return nil, fmt.Errorf("lattice: attribute %d has negative height %d", i, h)
		}
		size *= h + 1
		maxLevel += h
	}

	l := &Lattice{
		nodes:   make([]Node, 0, size),
		levels:  make([][]NodeID, maxLevel+1),
		byKey:   make(map[string]NodeID, size),
		heights: append([]int(nil), heights...),
	}

	// Enumerate all transformations in odometer order so IDs are stable.
	current := make(domain.Transformation, len(heights))
	for {
		id := NodeID(len(l.nodes))
		t := current.Clone()
		l.nodes = append(l.nodes, Node{
			id:             id,
			level:          t.Level(),
			transformation: t,
		})
		l.byKey[t.Key()] = id
		l.levels[t.Level()] = append(l.levels[t.Level()], id)

		carry := len(current) - 1
		for carry >= 0 {
			current[carry]++
			if current[carry] <= heights[carry] {
				break
			}
			current[carry] = 0
			carry--
		}
		if carry < 0 {
			break
		}
	}

	// Wire successor and predecessor edges.
	for i := range l.nodes {
		node := &l.nodes[i]
		t := node.transformation
		for attr := range t {
			if t[attr] >= heights[attr] {
				continue
			}
			up := t.Clone()
			up[attr]++
			succ := l.byKey[up.Key()]
			node.successors = append(node.successors, succ)
			l.nodes[succ].predecessors = append(l.nodes[succ].predecessors, node.id)
		}
	}

	l.bottom = l.levels[0][0]
	l.top = l.levels[maxLevel][0]
	return l, nil
}
