package search

import "deident/internal/lattice"

// PhaseConfig bundles the trigger set driving one search phase. Two instances
// exist per run: the binary phase and the linear phase. Either may be
// inactive; when the binary phase is active it always runs first per seed.
type PhaseConfig struct {
	// Active enables the phase.
	Active bool
	// Skip excludes nodes from all processing in this phase.
	Skip Trigger
	// Evaluate selects nodes whose loss is computed via the metric alone.
	Evaluate Trigger
	// Check selects nodes that receive the full anonymity check.
	Check Trigger
	// Tag propagates derived state after a node is evaluated or checked.
	Tag TagTrigger
	// AnonymityProperty is the node property this phase tests for.
	AnonymityProperty lattice.Property
	// StoreSnapshot decides which completed checks enter the history cache
	// while this phase is active.
	StoreSnapshot Trigger
	// EvictSnapshot decides which cached entries may be reclaimed while this
	// phase is active.
	EvictSnapshot Trigger
}

// InactivePhase returns a disabled phase configuration with inert triggers.
func InactivePhase() PhaseConfig {
	return PhaseConfig{
		Active:        false,
		Skip:          All(),
		Evaluate:      None(),
		Check:         None(),
		Tag:           NoTag(),
		StoreSnapshot: None(),
		EvictSnapshot: All(),
	}
}
