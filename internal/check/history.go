package check

import (
	"deident/internal/lattice"
	"deident/internal/search"
	"deident/pkg/domain"
)

// History caches groupify snapshots keyed by transformation so related checks
// can restart from class representatives instead of raw records. Which
// snapshots enter the cache and which may be reclaimed is decided by
// triggers the search engine swaps at every phase boundary.
type History struct {
	lat     *lattice.Lattice
	limit   int
	entries map[string]historyEntry
	order   []string // insertion order, eviction scan order

	store search.Trigger
	evict search.Trigger
}

type historyEntry struct {
	node    lattice.NodeID
	classes []Class
}

var _ search.SnapshotPolicy = (*History)(nil)

// NewHistory builds a bounded history for nodes of the given lattice. A
// limit of zero disables storage entirely.
func NewHistory(lat *lattice.Lattice, limit int) *History {
	return &History{
		lat:     lat,
		limit:   limit,
		entries: make(map[string]historyEntry),
		store:   search.None(),
		evict:   search.All(),
	}
}

// SetStoreTrigger implements search.SnapshotPolicy.
func (h *History) SetStoreTrigger(t search.Trigger) { h.store = t }

// SetEvictTrigger implements search.SnapshotPolicy.
func (h *History) SetEvictTrigger(t search.Trigger) { h.evict = t }

// Len returns the number of cached snapshots.
func (h *History) Len() int { return len(h.entries) }

// Store records the node's classes when the store trigger matches or the
// caller forces retention. Exceeding the limit evicts one earlier entry.
func (h *History) Store(node *lattice.Node, classes []Class, force bool) {
	if h.limit <= 0 {
		return
	}
	if !force && !h.store.Matches(node) {
		return
	}
	key := node.Transformation().Key()
	if _, exists := h.entries[key]; !exists {
		h.order = append(h.order, key)
	}
	h.entries[key] = historyEntry{node: node.ID(), classes: classes}
	if len(h.entries) > h.limit {
		h.evictOne()
	}
}

// Retrieve returns the snapshot of the most general cached transformation
// subordinate to t, preferring higher-level snapshots since they carry fewer
// classes to regroup.
func (h *History) Retrieve(t domain.Transformation) ([]Class, bool) {
	bestLevel := -1
	var best []Class
	for _, key := range h.order {
		entry := h.entries[key]
		node := h.lat.Node(entry.node)
		cand := node.Transformation()
		if !cand.Subordinate(t) {
			continue
		}
		if node.Level() > bestLevel {
			bestLevel = node.Level()
			best = entry.classes
		}
	}
	if bestLevel < 0 {
		return nil, false
	}
	return best, true
}

// evictOne reclaims the oldest entry matched by the evict trigger; pinned
// nodes (force-snapshot property) survive. Falls back to the oldest
// unpinned entry when the trigger matches nothing.
func (h *History) evictOne() {
	victim := -1
	for i, key := range h.order {
		node := h.lat.Node(h.entries[key].node)
		if node.HasProperty(lattice.PropertyForceSnapshot) {
			continue
		}
		if h.evict.Matches(node) {
			victim = i
			break
		}
		if victim < 0 {
			victim = i
		}
	}
	if victim < 0 {
		return
	}
	key := h.order[victim]
	h.order = append(h.order[:victim], h.order[victim+1:]...)
	delete(h.entries, key)
}
