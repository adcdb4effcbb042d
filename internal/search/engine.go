package search

import (
	"context"
	"sort"

	"deident/internal/lattice"
)

// Engine drives the hybrid search across a pre-built lattice. It owns no
// domain knowledge: anonymity and loss come from the Checker, ordering from
// the Strategy, and per-phase behavior from the two PhaseConfigs.
//
// When the binary phase is active its correctness depends on the active
// criterion being monotone along generalization paths; with a non-monotone
// criterion the run still terminates but may settle on a suboptimal node.
type Engine struct {
	lat      *lattice.Lattice
	checker  Checker
	strategy Strategy
	binary   PhaseConfig
	linear   PhaseConfig
}

// New wires an engine. At least one of the two phases should be active for
// the run to make progress.
func New(lat *lattice.Lattice, checker Checker, strategy Strategy, binary, linear PhaseConfig) *Engine {
	return &Engine{lat: lat, checker: checker, strategy: strategy, binary: binary, linear: linear}
}

// Run visits every level of the lattice bottom to top and dispatches each
// unresolved, unskipped node into the active phase. Checker faults abort the
// run; the search has no partial-result semantics past a failed check.
func (e *Engine) Run(ctx context.Context) error {
	bottom := e.lat.Bottom()
	if !bottom.HasProperty(lattice.PropertyChecked) {
		// The bottom node is the cheapest baseline and its snapshot
		// accelerates many later checks: check it eagerly and pin it.
		res, err := e.checker.Check(ctx, bottom, true)
		if err != nil {
			return err
		}
		bottom.SetInformationLoss(res.InformationLoss)
		bottom.SetProperty(lattice.PropertyForceSnapshot)
	}

	outer := e.linear
	if e.binary.Active {
		outer = e.binary
	}

	q := newQueue(e.lat, e.strategy)
	for _, level := range e.lat.Levels() {
		for _, id := range e.unsetSorted(level, outer.Skip) {
			if e.binary.Active {
				e.installPolicy(e.binary)
				if err := e.binarySearch(ctx, id, q); err != nil {
					return err
				}
			} else {
				e.installPolicy(e.linear)
				if err := e.linearSearch(ctx, id); err != nil {
					return err
				}
			}
		}
	}

	// The top node's loss bounds the loss of every tagged node, but only
	// when its status is inferable without ambiguity.
	top := e.lat.Top()
	if _, ok := top.InformationLoss(); !ok &&
		(e.checker.MetricMonotonic() || e.checker.MaxOutlierFraction() == 0) {
		if e.checker.MetricIndependent() {
			loss, err := e.checker.EvaluateLoss(top)
			if err != nil {
				return err
			}
			top.SetInformationLoss(loss)
		} else {
			res, err := e.checker.Check(ctx, top, true)
			if err != nil {
				return err
			}
			top.SetChecked(res.Anonymous, outer.AnonymityProperty, res.InformationLoss)
		}
	}
	return nil
}

// unsetSorted returns the level's nodes that have no recorded loss and are
// not skip-matched, in strategy order.
func (e *Engine) unsetSorted(level []lattice.NodeID, skip Trigger) []lattice.NodeID {
	out := make([]lattice.NodeID, 0, len(level))
	for _, id := range level {
		node := e.lat.Node(id)
		if _, ok := node.InformationLoss(); ok {
			continue
		}
		if skip.Matches(node) {
			continue
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return e.strategy.Compare(e.lat.Node(out[i]), e.lat.Node(out[j])) < 0
	})
	return out
}

// binarySearch drains the shared queue starting from seed: each popped node
// spans a greedy path toward the top, the path is bisected for the anonymity
// threshold, and a found witness is handed to the linear phase when active.
func (e *Engine) binarySearch(ctx context.Context, seed lattice.NodeID, q *queue) error {
	q.push(seed)
	for !q.empty() {
		head := e.lat.Node(q.pop())
		if e.binary.Skip.Matches(head) {
			continue
		}

		path := e.findPath(head, e.binary.Skip)
		witness, err := e.checkPathBinary(ctx, path, q)
		if err != nil {
			return err
		}

		if e.linear.Active && witness != nil {
			// The two phases have different cache locality: swap policies
			// around the sub-call.
			e.installPolicy(e.linear)
			if err := e.linearSearch(ctx, witness.ID()); err != nil {
				return err
			}
			e.installPolicy(e.binary)
		}
	}
	return nil
}

// findPath greedily builds a chain from start toward the top node, always
// stepping to the first unskipped successor in strategy order. The chain ends
// at a locally maximal node, not necessarily the global top.
func (e *Engine) findPath(start *lattice.Node, skip Trigger) []*lattice.Node {
	path := []*lattice.Node{start}
	for {
		e.sortSuccessors(start)
		advanced := false
		for _, id := range start.Successors() {
			candidate := e.lat.Node(id)
			if !skip.Matches(candidate) {
				path = append(path, candidate)
				start = candidate
				advanced = true
				break
			}
		}
		if !advanced {
			return path
		}
	}
}

// checkPathBinary bisects the path for the anonymity threshold and returns
// the least-general anonymous node found, or nil. Non-anonymous midpoints
// seed the queue with their unskipped successors: those may reach anonymity
// along a different path.
//
// A skip-matched midpoint advances low instead of stalling the bounds; the
// reference behavior of leaving them unchanged cannot terminate if skipped
// nodes persist inside the window.
func (e *Engine) checkPathBinary(ctx context.Context, path []*lattice.Node, q *queue) (*lattice.Node, error) {
	low, high := 0, len(path)-1
	var lastAnonymous *lattice.Node

	for low <= high {
		mid := (low + high) / 2
		node := path[mid]

		if e.binary.Skip.Matches(node) {
			low = mid + 1
			continue
		}

		if err := e.checkAndTag(ctx, node, e.binary); err != nil {
			return nil, err
		}

		if node.HasProperty(e.binary.AnonymityProperty) {
			lastAnonymous = node
			high = mid - 1
			continue
		}
		for _, up := range node.Successors() {
			if !e.binary.Skip.Matches(e.lat.Node(up)) {
				q.push(up)
			}
		}
		low = mid + 1
	}
	return lastAnonymous, nil
}

// linearSearch is the depth-first phase with predictive tagging. The
// recursion of the reference formulation is unrolled onto an explicit stack
// so call depth stays bounded on deep lattices.
func (e *Engine) linearSearch(ctx context.Context, start lattice.NodeID) error {
	stack := []lattice.NodeID{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node := e.lat.Node(id)
		if e.linear.Skip.Matches(node) {
			continue
		}

		e.sortSuccessors(node)
		if err := e.checkAndTag(ctx, node, e.linear); err != nil {
			return err
		}

		// Push in reverse strategy order so the preferred successor is
		// explored first, matching the recursive traversal.
		succs := node.Successors()
		for i := len(succs) - 1; i >= 0; i-- {
			if !e.linear.Skip.Matches(e.lat.Node(succs[i])) {
				stack = append(stack, succs[i])
			}
		}
	}
	return nil
}

// checkAndTag resolves a single node: metric-only evaluation when the phase's
// evaluate trigger matches, the full check when the check trigger matches,
// and unconditionally the tag action afterwards.
func (e *Engine) checkAndTag(ctx context.Context, node *lattice.Node, cfg PhaseConfig) error {
	if cfg.Evaluate.Matches(node) {
		loss, err := e.checker.EvaluateLoss(node)
		if err != nil {
			return err
		}
		node.SetInformationLoss(loss)
	} else if cfg.Check.Matches(node) {
		res, err := e.checker.Check(ctx, node, node.HasProperty(lattice.PropertyForceSnapshot))
		if err != nil {
			return err
		}
		node.SetChecked(res.Anonymous, cfg.AnonymityProperty, res.InformationLoss)
	}
	cfg.Tag.Apply(node)
	return nil
}

func (e *Engine) sortSuccessors(node *lattice.Node) {
	succs := node.Successors()
	sort.SliceStable(succs, func(i, j int) bool {
		return e.strategy.Compare(e.lat.Node(succs[i]), e.lat.Node(succs[j])) < 0
	})
}

func (e *Engine) installPolicy(cfg PhaseConfig) {
	history := e.checker.History()
	history.SetStoreTrigger(cfg.StoreSnapshot)
	history.SetEvictTrigger(cfg.EvictSnapshot)
}
