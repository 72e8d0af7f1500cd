package openfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkCacheGetPutTouch(t *testing.T) {
	c := newChunkCache(2)
	noEvict := func(uint64, *cacheEntry) error { return nil }

	require.NoError(t, c.put(0, &cacheEntry{data: []byte("a")}, noEvict))
	require.NoError(t, c.put(1, &cacheEntry{data: []byte("b")}, noEvict))

	e, ok := c.get(0)
	require.True(t, ok)
	assert.Equal(t, []byte("a"), e.data)
}

func TestChunkCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := newChunkCache(2)
	var evicted []uint64
	evict := func(nr uint64, e *cacheEntry) error {
		evicted = append(evicted, nr)
		return nil
	}

	require.NoError(t, c.put(0, &cacheEntry{data: []byte("a")}, evict))
	require.NoError(t, c.put(1, &cacheEntry{data: []byte("b")}, evict))
	c.get(0) // touch 0, making 1 the LRU
	require.NoError(t, c.put(2, &cacheEntry{data: []byte("c")}, evict))

	assert.Equal(t, []uint64{1}, evicted)
	_, ok := c.get(1)
	assert.False(t, ok)
}

func TestChunkCacheEvictTailFrom(t *testing.T) {
	c := newChunkCache(5)
	noEvict := func(uint64, *cacheEntry) error { return nil }
	require.NoError(t, c.put(0, &cacheEntry{data: []byte("a")}, noEvict))
	require.NoError(t, c.put(1, &cacheEntry{data: []byte("b")}, noEvict))
	require.NoError(t, c.put(2, &cacheEntry{data: []byte("c")}, noEvict))

	c.evictTailFrom(1)

	_, ok := c.get(0)
	assert.True(t, ok)
	_, ok = c.get(1)
	assert.False(t, ok)
	_, ok = c.get(2)
	assert.False(t, ok)
}
