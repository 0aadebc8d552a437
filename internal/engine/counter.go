package engine

import (
	"math"
	"sync/atomic"
)

const (
	// DefaultMaxMatches is the cap used when none is given; large enough
	// to mean "unbounded" for practical inputs.
	DefaultMaxMatches int64 = 10_000_000

	// CheckInterval is how many alignments a matcher advances between
	// checks of the shared counter's done flag.
	CheckInterval = 128
)

// Counter is the match count shared by every worker of one search call.
//
// All operations are atomic. Only an approximate, monotonically
// non-decreasing view is required by readers, so a worker may observe a
// stale count until its next check. Create one Counter per top-level search,
// or Reset it between independent searches.
type Counter struct {
	n    atomic.Int64
	cap  int64
	done atomic.Bool
}

// NewCounter creates a counter that signals completion once maxMatches
// matches have been counted. A non-positive maxMatches means no cap.
func NewCounter(maxMatches int64) *Counter {
	if maxMatches <= 0 {
		maxMatches = math.MaxInt64
	}
	return &Counter{cap: maxMatches}
}

// Cap returns the match cap.
func (c *Counter) Cap() int64 {
	return c.cap
}

// Add counts delta matches and returns the new total. Reaching the cap sets
// the done flag.
func (c *Counter) Add(delta int64) int64 {
	n := c.n.Add(delta)
	if n >= c.cap {
		c.done.Store(true)
	}
	return n
}

// Load returns the current total.
func (c *Counter) Load() int64 {
	return c.n.Load()
}

// Done reports whether the cap has been reached or Stop was called.
func (c *Counter) Done() bool {
	return c.done.Load()
}

// Reached reports whether the count is at or above the cap.
func (c *Counter) Reached() bool {
	return c.n.Load() >= c.cap
}

// Stop asks all workers sharing the counter to finish at their next check.
func (c *Counter) Stop() {
	c.done.Store(true)
}

// Reset zeroes the count and clears the done flag. It must not be called
// while a search is using the counter.
func (c *Counter) Reset() {
	c.n.Store(0)
	c.done.Store(false)
}
