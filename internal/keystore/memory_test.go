package keystore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryGetOrSetWithinTTL(t *testing.T) {
	clock := &manualClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewMemoryWithClock(clock.Now)
	ctx := context.Background()

	v, created, err := m.GetOrSet(ctx, "k", "first", time.Minute)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "first", v)

	clock.Advance(59 * time.Second)
	v, created, err = m.GetOrSet(ctx, "k", "second", time.Minute)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "first", v)

	clock.Advance(time.Second)
	v, created, err = m.GetOrSet(ctx, "k", "third", time.Minute)
	require.NoError(t, err)
	assert.True(t, created, "expired entry is replaced")
	assert.Equal(t, "third", v)
}

func TestMemoryGetSetDelete(t *testing.T) {
	clock := &manualClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewMemoryWithClock(clock.Now)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", "1", time.Hour))
	v, ok, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	require.NoError(t, m.Delete(ctx, "a", "missing"))
	_, ok, err = m.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "b", "2", time.Minute))
	clock.Advance(2 * time.Minute)
	_, ok, err = m.Get(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, m.Len(), "expired entry dropped on read")
}

func TestMemoryConcurrentClaimsConverge(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	got := make([]string, 20)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, err := m.GetOrSet(ctx, "k", string(rune('a'+i)), time.Minute)
			assert.NoError(t, err)
			got[i] = v
		}(i)
	}
	wg.Wait()

	for _, v := range got {
		assert.Equal(t, got[0], v)
	}
}
