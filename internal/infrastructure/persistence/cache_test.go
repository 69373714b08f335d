package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryCache_ExistsRespectsTTL(t *testing.T) {
	c := NewMemoryCache()

	assert.False(t, c.Exists("k"))

	c.Set("k", "v", time.Minute)
	assert.True(t, c.Exists("k"))

	c.entries["gone"] = cacheEntry{value: "v", expiresAt: time.Now().Add(-time.Second)}
	assert.False(t, c.Exists("gone"))

	c.Delete("k")
	assert.False(t, c.Exists("k"))
}

func TestMemoryCache_DeletePrefix(t *testing.T) {
	c := NewMemoryCache()
	c.Set("depgraph:base1", 1, time.Minute)
	c.Set("depgraph:base2", 2, time.Minute)
	c.Set("other", 3, time.Minute)

	c.DeletePrefix("depgraph:")
	assert.False(t, c.Exists("depgraph:base1"))
	assert.False(t, c.Exists("depgraph:base2"))
	assert.True(t, c.Exists("other"))
}

func TestNoopCache(t *testing.T) {
	var c Cache = NoopCache{}
	c.Set("k", "v", time.Minute)
	assert.False(t, c.Exists("k"))
	_, ok := c.Get("k")
	assert.False(t, ok)
}
