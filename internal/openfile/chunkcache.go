package openfile

// cacheEntry is a single cleartext chunk held in memory.
type cacheEntry struct {
	data  []byte
	dirty bool
}

// chunkCache is a bounded, LRU-evicted map from chunk index to decrypted
// chunk bytes, with dirty tracking and write-back on eviction. Grounded on
// spec §4.4's ChunkCache and the "cached computation under concurrency"
// design note (§9): a bounded map guarded by the owning OpenFile's lock,
// eviction performing I/O while the lock is held.
type chunkCache struct {
	capacity int
	entries  map[uint64]*cacheEntry
	order    []uint64 // least-recently-used first
}

func newChunkCache(capacity int) *chunkCache {
	return &chunkCache{capacity: capacity, entries: make(map[uint64]*cacheEntry)}
}

func (c *chunkCache) get(chunkNr uint64) (*cacheEntry, bool) {
	e, ok := c.entries[chunkNr]
	if ok {
		c.touch(chunkNr)
	}
	return e, ok
}

func (c *chunkCache) touch(chunkNr uint64) {
	for i, n := range c.order {
		if n == chunkNr {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, chunkNr)
}

// put installs or replaces the entry for chunkNr, evicting the
// least-recently-used entry first via evictOne if the cache is at
// capacity. evictOne is supplied by the owning OpenFile so eviction can
// re-encrypt and write back dirty chunks.
func (c *chunkCache) put(chunkNr uint64, e *cacheEntry, evictOne func(chunkNr uint64, e *cacheEntry) error) error {
	if _, exists := c.entries[chunkNr]; !exists && len(c.entries) >= c.capacity {
		victim := c.order[0]
		ve := c.entries[victim]
		if err := evictOne(victim, ve); err != nil {
			return err
		}
		delete(c.entries, victim)
		c.order = c.order[1:]
	}
	c.entries[chunkNr] = e
	c.touch(chunkNr)
	return nil
}

// forEach visits every cached entry, in no particular order.
func (c *chunkCache) forEach(f func(chunkNr uint64, e *cacheEntry) error) error {
	for _, nr := range c.order {
		if err := f(nr, c.entries[nr]); err != nil {
			return err
		}
	}
	return nil
}

// evictTailFrom discards cached entries whose index is >= fromChunk,
// without writing them back (used by Truncate, which makes those chunks
// irrelevant).
func (c *chunkCache) evictTailFrom(fromChunk uint64) {
	kept := c.order[:0]
	for _, nr := range c.order {
		if nr >= fromChunk {
			delete(c.entries, nr)
			continue
		}
		kept = append(kept, nr)
	}
	c.order = kept
}
