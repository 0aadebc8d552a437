// Package engine runs the Boyer-Moore scan over in-memory buffers, either on
// the calling goroutine or split across a worker pool.
package engine

import (
	"errors"
	"fmt"

	"GoBMSearch/internal/pattern"
)

var ErrInvalidRange = errors.New("engine: invalid search range")

// Emitter receives one match: its absolute offset and the containing buffer
// from the match start to the buffer's end. rest is only valid during the
// call.
type Emitter func(offset int64, rest []byte)

func discard(int64, []byte) {}

// Search scans the alignments s of text with start <= s <= end-m, where m is
// the pattern length, and emits base+s for every occurrence in increasing
// order. Each occurrence is counted on ctr; the scan returns early once ctr
// reaches its cap or is stopped. It returns the number of matches emitted.
//
// A nil ctr means no cap. A nil emit discards offsets.
func Search(text []byte, t *pattern.Tables, start, end int, base int64, ctr *Counter, emit Emitter) (int64, error) {
	if start < 0 || start > end || end > len(text) {
		return 0, fmt.Errorf("%w: [%d, %d) of %d bytes", ErrInvalidRange, start, end, len(text))
	}
	if ctr == nil {
		ctr = NewCounter(0)
	}
	if emit == nil {
		emit = discard
	}

	var found int64
	scan(text, t, start, end, ctr, func(s int) bool {
		emit(base+int64(s), text[s:])
		found++
		return ctr.Add(1) < ctr.Cap()
	})
	return found, nil
}

// scan is the Boyer-Moore loop shared by the sequential and parallel paths.
// onMatch returns false to end the scan.
func scan(text []byte, t *pattern.Tables, start, end int, ctr *Counter, onMatch func(s int) bool) {
	pat := t.Pattern
	shift := t.Shift
	m := len(pat)

	s := start
	for iter := 0; s <= end-m; iter++ {
		if iter%CheckInterval == 0 && ctr.Done() {
			return
		}

		j := m - 1
		for j >= 0 && pat[j] == text[s+j] {
			j--
		}

		if j < 0 {
			if !onMatch(s) {
				return
			}
			// The byte after the match decides the bad-character shift,
			// but only if it is inside the scanned range.
			bc := 1
			if s+m < end {
				bc = m - t.Last(text[s+m])
			}
			s += max(shift[0], bc)
			continue
		}

		s += max(shift[j+1], max(1, j-t.Last(text[s+j])))
	}
}
