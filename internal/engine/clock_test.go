package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerations_StartsAtZero(t *testing.T) {
	g := NewGenerations()
	assert.Equal(t, int64(0), g.Current())
}

func TestGenerations_NextIncrements(t *testing.T) {
	g := NewGenerations()
	assert.Equal(t, int64(1), g.Next())
	assert.Equal(t, int64(2), g.Next())
	assert.Equal(t, int64(2), g.Current())
}

func TestGenerations_IsLatest(t *testing.T) {
	g := NewGenerations()
	first := g.Next()
	assert.True(t, g.IsLatest(first))

	second := g.Next()
	assert.False(t, g.IsLatest(first))
	assert.True(t, g.IsLatest(second))
}

func TestGenerations_ConcurrentUnique(t *testing.T) {
	g := NewGenerations()
	const goroutines = 10
	const perGoroutine = 100

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				gen := g.Next()
				mu.Lock()
				assert.False(t, seen[gen], "generation %d issued twice", gen)
				seen[gen] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, goroutines*perGoroutine)
	assert.Equal(t, int64(goroutines*perGoroutine), g.Current())
}
