package search

import (
	"context"
	"testing"

	"deident/internal/lattice"
	"deident/pkg/domain"
)

// markerTrigger carries a name so tests can observe which trigger a policy
// surface received.
type markerTrigger struct{ name string }

func (markerTrigger) Matches(*lattice.Node) bool { return false }

type recordingPolicy struct {
	installs []string
}

func (p *recordingPolicy) SetStoreTrigger(t Trigger) {
	if m, ok := t.(markerTrigger); ok {
		p.installs = append(p.installs, "store:"+m.name)
		return
	}
	p.installs = append(p.installs, "store:anon")
}

func (p *recordingPolicy) SetEvictTrigger(t Trigger) {
	if m, ok := t.(markerTrigger); ok {
		p.installs = append(p.installs, "evict:"+m.name)
		return
	}
	p.installs = append(p.installs, "evict:anon")
}

// fakeChecker answers anonymity from a fixture predicate and records every
// invocation in order.
type fakeChecker struct {
	anonymous   func(domain.Transformation) bool
	monotonic   bool
	independent bool
	maxOutliers float64
	checks      []string
	evals       []string
	policy      recordingPolicy
}

func (f *fakeChecker) Check(_ context.Context, node *lattice.Node, _ bool) (CheckResult, error) {
	t := node.Transformation()
	f.checks = append(f.checks, t.Key())
	return CheckResult{Anonymous: f.anonymous(t), InformationLoss: float64(t.Level())}, nil
}

func (f *fakeChecker) EvaluateLoss(node *lattice.Node) (float64, error) {
	t := node.Transformation()
	f.evals = append(f.evals, t.Key())
	return float64(t.Level()), nil
}

func (f *fakeChecker) MetricMonotonic() bool      { return f.monotonic }
func (f *fakeChecker) MetricIndependent() bool    { return f.independent }
func (f *fakeChecker) MaxOutlierFraction() float64 { return f.maxOutliers }
func (f *fakeChecker) History() SnapshotPolicy    { return &f.policy }

func buildLattice(t *testing.T, heights ...int) *lattice.Lattice {
	t.Helper()
	l, err := lattice.Build(heights)
	if err != nil {
		t.Fatalf("build lattice: %v", err)
	}
	return l
}

func binaryPhase(lat *lattice.Lattice) PhaseConfig {
	return PhaseConfig{
		Active:            true,
		Skip:              AnyProperty(lattice.PropertyAnonymous | lattice.PropertyNotAnonymous),
		Evaluate:          None(),
		Check:             Not(AnyProperty(lattice.PropertyChecked)),
		Tag: Tag(AnyProperty(lattice.PropertyAnonymous), func(n *lattice.Node) {
			lat.PropagateUp(n.ID(), lattice.PropertyAnonymous)
		}),
		AnonymityProperty: lattice.PropertyAnonymous,
		StoreSnapshot:     markerTrigger{"binary"},
		EvictSnapshot:     markerTrigger{"binary"},
	}
}

func linearPhase() PhaseConfig {
	return PhaseConfig{
		Active:            true,
		Skip:              AnyProperty(lattice.PropertyChecked),
		Evaluate:          None(),
		Check:             Not(AnyProperty(lattice.PropertyChecked)),
		Tag:               NoTag(),
		AnonymityProperty: lattice.PropertyAnonymous,
		StoreSnapshot:     markerTrigger{"linear"},
		EvictSnapshot:     markerTrigger{"linear"},
	}
}

func TestCheckPathBinaryFindsThreshold(t *testing.T) {
	// A single attribute of height 7 yields a pure chain of 8 nodes.
	lat := buildLattice(t, 7)
	const threshold = 5
	chk := &fakeChecker{
		anonymous:   func(tr domain.Transformation) bool { return tr.Level() >= threshold },
		monotonic:   true,
		independent: true,
	}
	cfg := binaryPhase(lat)
	cfg.Tag = NoTag() // isolate the bisection itself
	eng := New(lat, chk, NewLevelStrategy(lat.Heights()), cfg, InactivePhase())

	path := eng.findPath(lat.Bottom(), cfg.Skip)
	if len(path) != 8 {
		t.Fatalf("expected full chain, got %d nodes", len(path))
	}

	q := newQueue(lat, eng.strategy)
	witness, err := eng.checkPathBinary(context.Background(), path, q)
	if err != nil {
		t.Fatalf("checkPathBinary: %v", err)
	}
	if witness == nil || witness.Level() != threshold {
		t.Fatalf("expected witness at level %d, got %v", threshold, witness)
	}
	// Bisection of 8 nodes must stay logarithmic, not linear.
	if len(chk.checks) > 4 {
		t.Fatalf("expected at most 4 checks, got %d: %v", len(chk.checks), chk.checks)
	}
}

func TestCheckPathBinaryEnqueuesSuccessorsOnce(t *testing.T) {
	lat := buildLattice(t, 1, 1)
	chk := &fakeChecker{
		anonymous: func(tr domain.Transformation) bool { return false },
	}
	cfg := binaryPhase(lat)
	cfg.Tag = NoTag()
	eng := New(lat, chk, NewLevelStrategy(lat.Heights()), cfg, InactivePhase())

	path := eng.findPath(lat.Bottom(), cfg.Skip)
	if len(path) != 3 {
		t.Fatalf("expected bottom-mid-top path, got %d nodes", len(path))
	}

	q := newQueue(lat, eng.strategy)
	if _, err := eng.checkPathBinary(context.Background(), path, q); err != nil {
		t.Fatalf("checkPathBinary: %v", err)
	}

	// The non-anonymous midpoint (0,1) must enqueue its unskipped successor
	// (1,1) exactly once; the later midpoints have no unskipped successors
	// left or none at all.
	counts := map[string]int{}
	for !q.empty() {
		counts[lat.Node(q.pop()).Transformation().Key()]++
	}
	if counts["1,1"] != 1 {
		t.Fatalf("expected top enqueued exactly once, got counts %v", counts)
	}
}

func TestCheckPathBinarySkippedMidpointTerminates(t *testing.T) {
	lat := buildLattice(t, 3)
	chk := &fakeChecker{anonymous: func(domain.Transformation) bool { return true }}
	cfg := binaryPhase(lat)
	cfg.Skip = All() // every midpoint skip-matched
	eng := New(lat, chk, NewLevelStrategy(lat.Heights()), cfg, InactivePhase())

	path := []*lattice.Node{lat.Bottom(), lat.Node(lat.Levels()[1][0]), lat.Node(lat.Levels()[2][0]), lat.Top()}
	witness, err := eng.checkPathBinary(context.Background(), path, newQueue(lat, eng.strategy))
	if err != nil {
		t.Fatalf("checkPathBinary: %v", err)
	}
	if witness != nil {
		t.Fatalf("expected no witness on an all-skipped path")
	}
	if len(chk.checks) != 0 {
		t.Fatalf("skip-matched midpoints must not be checked")
	}
}

func TestRunScenarioABinaryOnly(t *testing.T) {
	// Diamond lattice: bottom fails, both middle nodes and top satisfy the
	// criterion. Binary phase only, monotone independent metric.
	lat := buildLattice(t, 1, 1)
	chk := &fakeChecker{
		anonymous:   func(tr domain.Transformation) bool { return tr.Level() >= 1 },
		monotonic:   true,
		independent: true,
	}
	eng := New(lat, chk, NewLevelStrategy(lat.Heights()), binaryPhase(lat), InactivePhase())
	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	n1, _ := lat.Lookup(domain.Transformation{0, 1})
	n2, _ := lat.Lookup(domain.Transformation{1, 0})
	for _, n := range []*lattice.Node{n1, n2} {
		if !n.HasProperty(lattice.PropertyAnonymous) || !n.HasProperty(lattice.PropertyChecked) {
			t.Fatalf("expected %v checked anonymous", n.Transformation())
		}
	}
	if lat.Bottom().HasProperty(lattice.PropertyAnonymous) {
		t.Fatalf("bottom must not be anonymous")
	}

	// Top is inferable: tagged anonymous by propagation, loss evaluated via
	// the metric, never fully checked.
	top := lat.Top()
	if !top.HasProperty(lattice.PropertyAnonymous) {
		t.Fatalf("top must be tagged anonymous by propagation")
	}
	if top.HasProperty(lattice.PropertyChecked) {
		t.Fatalf("top must not be fully checked when inferable")
	}
	if loss, ok := top.InformationLoss(); !ok || loss != 2 {
		t.Fatalf("top loss must come from metric evaluation, got %v/%v", loss, ok)
	}
	for _, key := range chk.checks {
		if key == "1,1" {
			t.Fatalf("top must never be fully checked: %v", chk.checks)
		}
	}
	if len(chk.checks) != 3 { // bottom + two middle nodes
		t.Fatalf("expected 3 checks, got %v", chk.checks)
	}
}

func TestRunScenarioBLinearOnly(t *testing.T) {
	lat := buildLattice(t, 1, 1)
	chk := &fakeChecker{
		anonymous:   func(tr domain.Transformation) bool { return tr.Level() >= 1 },
		monotonic:   true,
		independent: true,
	}
	eng := New(lat, chk, NewLevelStrategy(lat.Heights()), InactivePhase(), linearPhase())
	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	// Depth-first from the level-1 seeds: bottom (forced baseline check),
	// then (0,1), its successor (1,1), then (1,0). Each exactly once.
	want := []string{"0,0", "0,1", "1,1", "1,0"}
	if len(chk.checks) != len(want) {
		t.Fatalf("expected %v, got %v", want, chk.checks)
	}
	for i, key := range want {
		if chk.checks[i] != key {
			t.Fatalf("expected visit order %v, got %v", want, chk.checks)
		}
	}
}

func TestRunScenarioCAllSkipped(t *testing.T) {
	lat := buildLattice(t, 1, 1)
	// Pre-resolve the bottom so the forced baseline check does not fire.
	lat.Bottom().SetChecked(false, lattice.PropertyAnonymous, 0)

	chk := &fakeChecker{
		anonymous:   func(domain.Transformation) bool { return true },
		monotonic:   false,
		independent: false,
		maxOutliers: 0.04, // top inference not permitted either
	}
	cfg := linearPhase()
	cfg.Skip = All()
	eng := New(lat, chk, NewLevelStrategy(lat.Heights()), InactivePhase(), cfg)

	before := make([]lattice.Property, lat.Size())
	for i := 0; i < lat.Size(); i++ {
		before[i] = lat.Node(lattice.NodeID(i)).Properties()
	}

	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(chk.checks) != 0 || len(chk.evals) != 0 {
		t.Fatalf("expected zero checker invocations, got %v / %v", chk.checks, chk.evals)
	}
	for i := 0; i < lat.Size(); i++ {
		if lat.Node(lattice.NodeID(i)).Properties() != before[i] {
			t.Fatalf("node %d mutated by an all-skip run", i)
		}
	}
}

func TestRunPhaseHandoffSwapsCachePolicy(t *testing.T) {
	lat := buildLattice(t, 1, 1)
	chk := &fakeChecker{
		anonymous:   func(tr domain.Transformation) bool { return tr.Level() >= 1 },
		monotonic:   true,
		independent: true,
	}
	binary := binaryPhase(lat)
	binary.Tag = NoTag() // keep the linear phase reachable for every witness
	eng := New(lat, chk, NewLevelStrategy(lat.Heights()), binary, linearPhase())
	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	// Every linear install must be bracketed by binary installs: the engine
	// swaps to the linear policy for the witness sub-call and restores the
	// binary policy immediately after.
	installs := chk.policy.installs
	for i, tag := range installs {
		if tag == "store:linear" {
			if i == 0 || installs[i-1] == "store:linear" {
				t.Fatalf("linear policy installed without a binary phase active before: %v", installs)
			}
			restored := false
			for _, later := range installs[i+1:] {
				if later == "store:binary" {
					restored = true
					break
				}
			}
			if !restored {
				t.Fatalf("binary policy never restored after linear sub-call: %v", installs)
			}
		}
	}
	found := false
	for _, tag := range installs {
		if tag == "store:linear" {
			found = true
		}
	}
	if !found {
		t.Fatalf("linear phase never ran despite an anonymous witness: %v", installs)
	}
}

func TestLinearSearchIdempotentOnFinalizedNode(t *testing.T) {
	lat := buildLattice(t, 1)
	node := lat.Bottom()
	node.SetChecked(true, lattice.PropertyAnonymous, 0)

	chk := &fakeChecker{anonymous: func(domain.Transformation) bool { return true }}
	eng := New(lat, chk, NewLevelStrategy(lat.Heights()), InactivePhase(), linearPhase())
	if err := eng.linearSearch(context.Background(), node.ID()); err != nil {
		t.Fatalf("linearSearch: %v", err)
	}
	if len(chk.checks) != 0 {
		t.Fatalf("finalized node must not be re-checked: %v", chk.checks)
	}
}

func TestRunNonMonotonicFixtureAcceptsSuboptimalTagging(t *testing.T) {
	// The criterion here is deliberately non-monotone: the middle nodes
	// satisfy it but the top does not. With the binary phase's upward
	// propagation the top is still tagged anonymous without a check - the
	// documented, accepted risk of running the binary phase regardless.
	lat := buildLattice(t, 1, 1)
	chk := &fakeChecker{
		anonymous:   func(tr domain.Transformation) bool { return tr.Level() == 1 },
		monotonic:   true,
		independent: true,
	}
	eng := New(lat, chk, NewLevelStrategy(lat.Heights()), binaryPhase(lat), InactivePhase())
	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	top := lat.Top()
	if !top.HasProperty(lattice.PropertyAnonymous) || top.HasProperty(lattice.PropertyChecked) {
		t.Fatalf("expected top tagged anonymous by propagation despite violating the criterion")
	}
}

func TestRunResolvesAllReachableNodes(t *testing.T) {
	lat := buildLattice(t, 2, 1)
	chk := &fakeChecker{
		anonymous:   func(tr domain.Transformation) bool { return tr.Level() >= 2 },
		monotonic:   true,
		independent: true,
	}
	eng := New(lat, chk, NewLevelStrategy(lat.Heights()), InactivePhase(), linearPhase())
	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	for i := 0; i < lat.Size(); i++ {
		node := lat.Node(lattice.NodeID(i))
		_, hasLoss := node.InformationLoss()
		if !hasLoss && !node.HasProperty(lattice.PropertyChecked) {
			t.Fatalf("node %v left unresolved", node.Transformation())
		}
	}
}
