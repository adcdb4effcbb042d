// Package lattice models the full-domain generalization lattice as a flat
// arena of nodes addressed by stable integer IDs. Nodes carry the mutable
// search state (properties, cached loss); adjacency is immutable after build.
package lattice

import "deident/pkg/domain"

// Property is a bit flag of mutable node search state. The set is extensible:
// search phases may reserve additional bits via NextProperty.
type Property uint32

const (
	// PropertyChecked marks nodes whose full check result is recorded.
	PropertyChecked Property = 1 << iota
	// PropertyAnonymous marks nodes satisfying the active criterion.
	PropertyAnonymous
	// PropertyNotAnonymous marks nodes violating the active criterion.
	PropertyNotAnonymous
	// PropertyKAnonymous marks nodes satisfying plain k-anonymity, used as
	// the binary-phase target when the loss metric is non-monotonic.
	PropertyKAnonymous
	// PropertyNotKAnonymous is the negative counterpart of PropertyKAnonymous.
	PropertyNotKAnonymous
	// PropertyForceSnapshot pins a node's history snapshot against eviction.
	PropertyForceSnapshot
	// PropertyVisited marks nodes seen by the linear phase.
	PropertyVisited

	nextProperty
)

// NextProperty hands out property bits beyond the predefined set so that
// custom triggers can reserve their own state. Callers own collision safety.
func NextProperty(n uint) Property {
	return nextProperty << n
}

// NodeID addresses a node within its lattice's arena.
type NodeID int

// Node is one transformation scheme with search-derived mutable state.
type Node struct {
	id             NodeID
	level          int
	transformation domain.Transformation

	successors   []NodeID
	predecessors []NodeID

	properties Property
	loss       float64
	hasLoss    bool
}

// ID returns the node's arena index.
func (n *Node) ID() NodeID { return n.id }

// Level returns the node's lattice level (sum of generalization levels).
func (n *Node) Level() int { return n.level }

// Transformation returns the node's generalization scheme. Callers must not
// mutate the returned slice.
func (n *Node) Transformation() domain.Transformation { return n.transformation }

// Successors returns the IDs of the node's direct generalizations. The slice
// is live: the search engine reorders it in place for deterministic traversal.
func (n *Node) Successors() []NodeID { return n.successors }

// Predecessors returns the IDs of the node's direct specializations.
func (n *Node) Predecessors() []NodeID { return n.predecessors }

// HasProperty reports whether any of the given property bits is set.
func (n *Node) HasProperty(p Property) bool { return n.properties&p != 0 }

// SetProperty sets the given property bits.
func (n *Node) SetProperty(p Property) { n.properties |= p }

// Properties returns the full property bitset.
func (n *Node) Properties() Property { return n.properties }

// InformationLoss returns the recorded loss and whether one is present.
func (n *Node) InformationLoss() (float64, bool) { return n.loss, n.hasLoss }

// SetInformationLoss records the node's information loss.
func (n *Node) SetInformationLoss(loss float64) {
	n.loss = loss
	n.hasLoss = true
}

// SetChecked records a full check result: the anonymity outcome for the given
// target property plus the information loss, and marks the node checked.
func (n *Node) SetChecked(anonymous bool, anonymityProperty Property, loss float64) {
	n.SetProperty(PropertyChecked)
	if anonymous {
		n.SetProperty(anonymityProperty)
	} else {
		n.SetProperty(negate(anonymityProperty))
	}
	n.SetInformationLoss(loss)
}

// negate maps a positive anonymity property to its negative counterpart.
func negate(p Property) Property {
	switch p {
	case PropertyAnonymous:
		return PropertyNotAnonymous
	case PropertyKAnonymous:
		return PropertyNotKAnonymous
	default:
		return PropertyNotAnonymous
	}
}
