package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedIDs_ListThenFallback(t *testing.T) {
	gen := NewFixedIDs("", "first", "second")

	assert.Equal(t, "first", gen.Generate())
	assert.Equal(t, "second", gen.Generate())
	assert.Equal(t, "op-3", gen.Generate())
	assert.Equal(t, 3, gen.Count())
}

func TestFixedIDs_Prefix(t *testing.T) {
	gen := NewFixedIDs("series")
	assert.Equal(t, "series-1", gen.Generate())
	assert.Equal(t, "series-2", gen.Generate())
}
