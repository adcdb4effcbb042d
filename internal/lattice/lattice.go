package lattice

import "deident/pkg/domain"

// Lattice is an arena-backed generalization lattice organized into levels.
// Level 0 holds the single bottom node (no generalization); the last level
// holds the single top node (maximum generalization of every attribute).
type Lattice struct {
	nodes  []Node
	levels [][]NodeID
	byKey  map[string]NodeID
	bottom NodeID
	top    NodeID
	// heights holds the maximum generalization level per attribute.
	heights []int
}

// Node resolves an arena ID to its node.
func (l *Lattice) Node(id NodeID) *Node { return &l.nodes[id] }

// Lookup resolves a transformation to its node, if present.
func (l *Lattice) Lookup(t domain.Transformation) (*Node, bool) {
	id, ok := l.byKey[t.Key()]
	if !ok {
		return nil, false
	}
	return &l.nodes[id], true
}

// Levels returns node IDs grouped by level, bottom to top. Callers must not
// mutate the returned slices.
func (l *Lattice) Levels() [][]NodeID { return l.levels }

// Bottom returns the least general node.
func (l *Lattice) Bottom() *Node { return &l.nodes[l.bottom] }

// Top returns the most general node.
func (l *Lattice) Top() *Node { return &l.nodes[l.top] }

// Size returns the number of candidate transformations.
func (l *Lattice) Size() int { return len(l.nodes) }

// Heights returns the per-attribute maximum generalization levels.
func (l *Lattice) Heights() []int { return l.heights }

// PropagateUp sets the given properties on every node above start, following
// successor edges transitively. Nodes already carrying all bits are not
// re-expanded, which bounds the walk on dense lattices.
func (l *Lattice) PropagateUp(start NodeID, p Property) {
	l.propagate(start, p, func(n *Node) []NodeID { return n.successors })
}

// PropagateDown sets the given properties on every node below start, following
// predecessor edges transitively.
func (l *Lattice) PropagateDown(start NodeID, p Property) {
	l.propagate(start, p, func(n *Node) []NodeID { return n.predecessors })
}

func (l *Lattice) propagate(start NodeID, p Property, next func(*Node) []NodeID) {
	stack := append([]NodeID(nil), next(&l.nodes[start])...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := &l.nodes[id]
		if node.properties&p == p {
			continue
		}
		node.SetProperty(p)
		stack = append(stack, next(node)...)
	}
}
