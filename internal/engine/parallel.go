package engine

import "GoBMSearch/internal/pattern"

// ParallelMatcher splits one buffer into partitions and scans them on a
// worker pool.
type ParallelMatcher struct {
	pool *Pool
}

// NewParallelMatcher creates a matcher that runs on pool.
func NewParallelMatcher(pool *Pool) (*ParallelMatcher, error) {
	if pool == nil || pool.Workers() <= 0 {
		return nil, ErrNoConcurrency
	}
	return &ParallelMatcher{pool: pool}, nil
}

// Workers returns the number of partitions a buffer is split into at most.
func (pm *ParallelMatcher) Workers() int {
	return pm.pool.Workers()
}

// Search scans all of text across the pool's workers and emits base+s for
// every occurrence s. Partitions share ctr, so the cap applies to the whole
// buffer; workers notice a reached cap at their next check, so the total may
// exceed the cap by a small amount.
//
// Offsets are emitted after all partitions finish, partition by partition:
// increasing within a partition, not sorted overall. emit is never called
// concurrently. It returns the number of matches emitted.
func (pm *ParallelMatcher) Search(text []byte, t *pattern.Tables, base int64, ctr *Counter, emit Emitter) (int64, error) {
	if ctr == nil {
		ctr = NewCounter(0)
	}
	if emit == nil {
		emit = discard
	}

	parts := Partition(len(text), t.Len(), pm.pool.Workers())
	results := make([][]int, len(parts))
	tasks := make([]func(), len(parts))
	for i, r := range parts {
		tasks[i] = func() {
			scan(text, t, r.Start, r.End, ctr, func(s int) bool {
				results[i] = append(results[i], s)
				return ctr.Add(1) < ctr.Cap()
			})
		}
	}
	if err := pm.pool.Run(tasks); err != nil {
		return 0, err
	}

	var found int64
	for _, offsets := range results {
		for _, s := range offsets {
			emit(base+int64(s), text[s:])
			found++
		}
	}
	return found, nil
}
