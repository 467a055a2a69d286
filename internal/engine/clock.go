package engine

import "sync/atomic"

// Generations numbers refresh passes. Every pass takes a generation before
// it starts computing; its result may be applied only while that generation
// is still the latest issued. A superseded pass is dropped, never cancelled.
//
// Thread-safety: Generations is safe for concurrent use (atomic operations).
type Generations struct {
	seq atomic.Int64
}

// NewGenerations creates a counter starting at 0.
func NewGenerations() *Generations {
	return &Generations{}
}

// Next issues the next generation.
func (g *Generations) Next() int64 {
	return g.seq.Add(1)
}

// Current returns the latest issued generation.
func (g *Generations) Current() int64 {
	return g.seq.Load()
}

// IsLatest reports whether gen is still the newest generation.
func (g *Generations) IsLatest(gen int64) bool {
	return g.seq.Load() == gen
}
