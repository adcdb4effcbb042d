// Package search implements the hybrid binary/linear lattice search: an outer
// per-level loop seeds a binary phase that bisects greedy paths toward the top
// of the lattice, optionally refined by a depth-first linear phase. Behavior
// is parameterized entirely through trigger predicates so the same traversal
// serves different optimization strategies.
package search

import "deident/internal/lattice"

// Trigger is a node predicate evaluated by the engine. The engine never
// inspects why a trigger matches.
type Trigger interface {
	Matches(*lattice.Node) bool
}

// TagTrigger is the tag role: a predicate plus a side-effecting action that
// may propagate derived state to related nodes.
type TagTrigger interface {
	Trigger
	Apply(*lattice.Node)
}

// TriggerFunc adapts a plain function to the Trigger contract.
type TriggerFunc func(*lattice.Node) bool

// Matches implements Trigger.
func (f TriggerFunc) Matches(n *lattice.Node) bool { return f(n) }

// All matches every node.
func All() Trigger { return TriggerFunc(func(*lattice.Node) bool { return true }) }

// None matches no node.
func None() Trigger { return TriggerFunc(func(*lattice.Node) bool { return false }) }

// AnyProperty matches nodes carrying at least one of the given property bits.
func AnyProperty(p lattice.Property) Trigger {
	return TriggerFunc(func(n *lattice.Node) bool { return n.HasProperty(p) })
}

// AllProperties matches nodes carrying every one of the given property bits.
func AllProperties(p lattice.Property) Trigger {
	return TriggerFunc(func(n *lattice.Node) bool { return n.Properties()&p == p })
}

// Not inverts a trigger.
func Not(t Trigger) Trigger {
	return TriggerFunc(func(n *lattice.Node) bool { return !t.Matches(n) })
}

// And matches when every trigger matches.
func And(ts ...Trigger) Trigger {
	return TriggerFunc(func(n *lattice.Node) bool {
		for _, t := range ts {
			if !t.Matches(n) {
				return false
			}
		}
		return true
	})
}

// Or matches when at least one trigger matches.
func Or(ts ...Trigger) Trigger {
	return TriggerFunc(func(n *lattice.Node) bool {
		for _, t := range ts {
			if t.Matches(n) {
				return true
			}
		}
		return false
	})
}

// Tag builds a TagTrigger from a predicate and an action. Apply runs the
// action only on matching nodes, so engines may invoke it unconditionally.
func Tag(when Trigger, do func(*lattice.Node)) TagTrigger {
	return tagTrigger{when: when, do: do}
}

// NoTag is a tag trigger that matches nothing and does nothing.
func NoTag() TagTrigger {
	return tagTrigger{when: None(), do: func(*lattice.Node) {}}
}

type tagTrigger struct {
	when Trigger
	do   func(*lattice.Node)
}

func (t tagTrigger) Matches(n *lattice.Node) bool { return t.when.Matches(n) }

func (t tagTrigger) Apply(n *lattice.Node) {
	if t.when.Matches(n) {
		t.do(n)
	}
}
