package pattern

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// shardCount must be a power of two.
const shardCount = 16

// CacheOptions configures a Cache.
type CacheOptions struct {
	// Alphabet is the byte-value range of the bad-character tables.
	// Default: DefaultAlphabet.
	Alphabet int

	// MaxEntries bounds the number of cached patterns. Zero means
	// unbounded, which is only appropriate for short-lived processes.
	// Once the bound is reached new patterns are preprocessed on every
	// request and never cached; existing entries are never evicted.
	MaxEntries int
}

// DefaultCacheOptions returns CacheOptions with sensible defaults.
func DefaultCacheOptions() CacheOptions {
	return CacheOptions{
		Alphabet: DefaultAlphabet,
	}
}

// CacheStats is a point-in-time view of cache activity.
type CacheStats struct {
	Entries  int   `json:"entries"`
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Uncached int64 `json:"uncached"`
}

// Cache memoizes Tables by pattern content. It is safe for concurrent use:
// lookups take a shard read lock, and a pattern is inserted at most once so
// every caller asking for equal bytes receives the same *Tables.
type Cache struct {
	alphabet   int
	maxEntries int
	shards     [shardCount]cacheShard

	entries  atomic.Int64
	hits     atomic.Int64
	misses   atomic.Int64
	uncached atomic.Int64
}

type cacheShard struct {
	mu     sync.RWMutex
	tables map[string]*Tables
}

// NewCache creates an empty cache.
func NewCache(opts CacheOptions) *Cache {
	if opts.Alphabet == 0 {
		opts.Alphabet = DefaultAlphabet
	}
	if opts.MaxEntries < 0 {
		opts.MaxEntries = 0
	}
	c := &Cache{
		alphabet:   opts.Alphabet,
		maxEntries: opts.MaxEntries,
	}
	for i := range c.shards {
		c.shards[i].tables = make(map[string]*Tables)
	}
	return c
}

// Alphabet returns the alphabet size used for every entry.
func (c *Cache) Alphabet() int {
	return c.alphabet
}

// Get returns the tables for pat, building them on first use.
func (c *Cache) Get(pat []byte) (*Tables, error) {
	t, _, err := c.Lookup(pat)
	return t, err
}

// Lookup is Get that also reports whether the tables came from the cache.
func (c *Cache) Lookup(pat []byte) (*Tables, bool, error) {
	if len(pat) == 0 {
		// Let Preprocess produce the error.
		_, err := Preprocess(pat, c.alphabet)
		return nil, false, err
	}

	sh := &c.shards[xxhash.Sum64(pat)&(shardCount-1)]

	sh.mu.RLock()
	t, ok := sh.tables[string(pat)]
	sh.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return t, true, nil
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()

	// Another goroutine may have inserted it while we waited.
	if t, ok := sh.tables[string(pat)]; ok {
		c.hits.Add(1)
		return t, true, nil
	}

	t, err := Preprocess(pat, c.alphabet)
	if err != nil {
		return nil, false, err
	}
	c.misses.Add(1)

	if !c.reserve() {
		c.uncached.Add(1)
		return t, false, nil
	}
	sh.tables[string(pat)] = t
	return t, false, nil
}

// reserve claims room for one entry. Shards insert concurrently, so the
// bound is enforced on the shared count.
func (c *Cache) reserve() bool {
	for {
		n := c.entries.Load()
		if c.maxEntries > 0 && n >= int64(c.maxEntries) {
			return false
		}
		if c.entries.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Len returns the number of cached patterns.
func (c *Cache) Len() int {
	return int(c.entries.Load())
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Entries:  c.Len(),
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Uncached: c.uncached.Load(),
	}
}
