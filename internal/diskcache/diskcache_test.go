package diskcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/forgegrid/internal/digest"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestLookupMiss(t *testing.T) {
	c := newTestCache(t)
	_, ok := c.Lookup("src/a.go", 10, time.Now())
	assert.False(t, ok)
}

func TestStoreThenLookup(t *testing.T) {
	c := newTestCache(t)
	mod := time.Now()
	d := digest.OfString("content")

	require.NoError(t, c.Store("src/a.go", 7, mod, d))

	got, ok := c.Lookup("src/a.go", 7, mod)
	require.True(t, ok)
	assert.Equal(t, d, got)
}

func TestChangedIdentityMisses(t *testing.T) {
	c := newTestCache(t)
	mod := time.Now()
	require.NoError(t, c.Store("src/a.go", 7, mod, digest.OfString("content")))

	_, ok := c.Lookup("src/a.go", 8, mod)
	assert.False(t, ok, "different size must miss")

	_, ok = c.Lookup("src/a.go", 7, mod.Add(time.Second))
	assert.False(t, ok, "different mtime must miss")

	_, ok = c.Lookup("src/b.go", 7, mod)
	assert.False(t, ok, "different path must miss")
}
