package testutil

import (
	"fmt"
	"sync"
)

// FixedIDs returns predetermined ids in order, then falls back to
// "<prefix>-<n>" once the list is exhausted.
//
// This enables deterministic test execution and golden snapshot comparison:
// the same scenario with the same FixedIDs produces byte-identical output.
//
// Implements opkey.IDGenerator.
//
// Thread-safety: FixedIDs is safe for concurrent use via internal mutex.
type FixedIDs struct {
	mu     sync.Mutex
	prefix string
	ids    []string
	n      int
}

// NewFixedIDs creates a generator. If prefix is empty, "op" is used.
func NewFixedIDs(prefix string, ids ...string) *FixedIDs {
	if prefix == "" {
		prefix = "op"
	}
	return &FixedIDs{prefix: prefix, ids: ids}
}

// Generate returns the next id.
func (g *FixedIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	if g.n <= len(g.ids) {
		return g.ids[g.n-1]
	}
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Count returns how many ids have been generated.
func (g *FixedIDs) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}
