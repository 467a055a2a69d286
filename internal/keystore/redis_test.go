package keystore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs only when PHARMA_TEST_REDIS_URL points at a disposable server.
func TestRedisGetOrSet(t *testing.T) {
	url := os.Getenv("PHARMA_TEST_REDIS_URL")
	if url == "" {
		t.Skip("PHARMA_TEST_REDIS_URL not set")
	}
	r, err := NewRedis(url, "pharmaapp-test:"+uuid.NewString()+":")
	require.NoError(t, err)
	defer r.Close()
	ctx := context.Background()

	v, created, err := r.GetOrSet(ctx, "k", "first", time.Minute)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "first", v)

	v, created, err = r.GetOrSet(ctx, "k", "second", time.Minute)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "first", v)

	require.NoError(t, r.Delete(ctx, "k"))
	_, ok, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
