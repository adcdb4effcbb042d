package core

import (
	"deident/internal/check"
	"deident/internal/lattice"
	"deident/internal/search"
)

// phasePlan holds the two phase configurations a run is wired with.
type phasePlan struct {
	binary search.PhaseConfig
	linear search.PhaseConfig
	mode   string
}

// anonymousProperties covers both ways a node can be known anonymous: the
// full criterion property and the first-phase classification property.
const anonymousProperties = lattice.PropertyAnonymous | lattice.PropertyKAnonymous

// buildPhases selects the search mode from the monotonicity of the criterion
// and of the metric.
//
// Both monotone: the binary phase alone finds the minimal anonymous frontier,
// and with a monotone metric the optimum lies on it. Criterion monotone but
// metric not: the binary phase classifies the lattice cheaply, then the
// linear phase walks the anonymous region from each binary witness to score
// it. Criterion not monotone: binary search is unsound, so only the linear
// phase runs.
func buildPhases(lat *lattice.Lattice, chk *check.Checker) phasePlan {
	if !chk.CriterionMonotonic() {
		linear := search.PhaseConfig{
			Active:            true,
			Skip:              search.AnyProperty(lattice.PropertyChecked),
			Evaluate:          search.None(),
			Check:             search.Not(search.AnyProperty(lattice.PropertyChecked)),
			Tag:               search.NoTag(),
			AnonymityProperty: lattice.PropertyAnonymous,
			StoreSnapshot:     search.All(),
			EvictSnapshot:     search.All(),
		}
		return phasePlan{binary: search.InactivePhase(), linear: linear, mode: "linear"}
	}

	if chk.MetricMonotonic() {
		resolved := search.AnyProperty(lattice.PropertyAnonymous | lattice.PropertyNotAnonymous)
		binary := search.PhaseConfig{
			Active:   true,
			Skip:     resolved,
			Evaluate: search.None(),
			Check:    search.Not(resolved),
			Tag: search.Tag(resolved, func(n *lattice.Node) {
				if n.HasProperty(lattice.PropertyAnonymous) {
					lat.PropagateUp(n.ID(), lattice.PropertyAnonymous)
					return
				}
				lat.PropagateDown(n.ID(), lattice.PropertyNotAnonymous)
			}),
			AnonymityProperty: lattice.PropertyAnonymous,
			// Snapshots of anonymous nodes are dead weight here: every node
			// above one is known anonymous and will never be groupified.
			StoreSnapshot: search.AnyProperty(lattice.PropertyNotAnonymous),
			EvictSnapshot: search.AnyProperty(lattice.PropertyAnonymous),
		}
		return phasePlan{binary: binary, linear: search.InactivePhase(), mode: "binary"}
	}

	classified := search.AnyProperty(lattice.PropertyKAnonymous | lattice.PropertyNotKAnonymous | lattice.PropertyChecked)
	binary := search.PhaseConfig{
		Active:   true,
		Skip:     classified,
		Evaluate: search.None(),
		Check:    search.Not(search.AnyProperty(lattice.PropertyChecked)),
		Tag: search.Tag(search.AnyProperty(lattice.PropertyKAnonymous|lattice.PropertyNotKAnonymous), func(n *lattice.Node) {
			if n.HasProperty(lattice.PropertyKAnonymous) {
				lat.PropagateUp(n.ID(), lattice.PropertyKAnonymous)
				return
			}
			lat.PropagateDown(n.ID(), lattice.PropertyNotKAnonymous)
		}),
		AnonymityProperty: lattice.PropertyKAnonymous,
		StoreSnapshot:     search.AnyProperty(lattice.PropertyNotKAnonymous),
		EvictSnapshot:     search.AnyProperty(lattice.PropertyKAnonymous),
	}

	evaluate := search.None()
	if chk.MetricIndependent() {
		// A first-phase classification plus an independent metric means the
		// loss needs no groupify at all.
		evaluate = search.AnyProperty(lattice.PropertyKAnonymous)
	}
	// The linear phase starts from binary witnesses, which are already
	// checked. Skipping on a separate visited marker keeps the walk moving
	// through them into the classified region above.
	linear := search.PhaseConfig{
		Active:            true,
		Skip:              search.AnyProperty(lattice.PropertyVisited | lattice.PropertyNotKAnonymous),
		Evaluate:          evaluate,
		Check:             search.Not(search.AnyProperty(lattice.PropertyChecked)),
		Tag:               search.Tag(search.All(), func(n *lattice.Node) { n.SetProperty(lattice.PropertyVisited) }),
		AnonymityProperty: lattice.PropertyAnonymous,
		StoreSnapshot:     search.All(),
		EvictSnapshot:     search.All(),
	}
	return phasePlan{binary: binary, linear: linear, mode: "two-phase"}
}
