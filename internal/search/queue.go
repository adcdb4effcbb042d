package search

import (
	"container/heap"

	"deident/internal/lattice"
)

// queue is a strategy-ordered priority queue of node IDs shared across
// binary-search invocations. Duplicate pushes are allowed; the pop side
// relies on the skip trigger to discard already-resolved nodes.
type queue struct {
	lat      *lattice.Lattice
	strategy Strategy
	ids      []lattice.NodeID
}

func newQueue(lat *lattice.Lattice, strategy Strategy) *queue {
	return &queue{lat: lat, strategy: strategy}
}

func (q *queue) Len() int { return len(q.ids) }

func (q *queue) Less(i, j int) bool {
	return q.strategy.Compare(q.lat.Node(q.ids[i]), q.lat.Node(q.ids[j])) < 0
}

func (q *queue) Swap(i, j int) { q.ids[i], q.ids[j] = q.ids[j], q.ids[i] }

func (q *queue) Push(x any) { q.ids = append(q.ids, x.(lattice.NodeID)) }

func (q *queue) Pop() any {
	last := q.ids[len(q.ids)-1]
	q.ids = q.ids[:len(q.ids)-1]
	return last
}

func (q *queue) push(id lattice.NodeID) { heap.Push(q, id) }

func (q *queue) pop() lattice.NodeID { return heap.Pop(q).(lattice.NodeID) }

func (q *queue) empty() bool { return len(q.ids) == 0 }
