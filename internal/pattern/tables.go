// Package pattern builds and memoizes the Boyer-Moore shift tables for a
// search pattern.
package pattern

import (
	"errors"
	"fmt"
)

const (
	// DefaultAlphabet covers every byte value.
	DefaultAlphabet = 256

	// MaxAlphabet is the largest alphabet a byte-oriented table can index.
	MaxAlphabet = 256
)

var (
	ErrInvalidPattern  = errors.New("pattern: invalid pattern")
	ErrInvalidAlphabet = errors.New("pattern: invalid alphabet size")
)

// Tables holds the preprocessed heuristics for one pattern.
// A Tables value is immutable once built and may be shared by any number of
// concurrent matchers.
type Tables struct {
	// Pattern is a private copy of the pattern bytes.
	Pattern []byte

	// BadChar maps a byte value to its rightmost index in Pattern, or -1.
	BadChar []int

	// BorderPos[i] is the start of the widest border of Pattern[i:].
	// BorderPos[len(Pattern)] is always len(Pattern)+1.
	BorderPos []int

	// Shift[j] is the good-suffix shift when the mismatch leaves
	// Pattern[j:] matched. Every entry is at least 1.
	Shift []int
}

// Len returns the pattern length.
func (t *Tables) Len() int {
	return len(t.Pattern)
}

// Alphabet returns the alphabet size the bad-character table was built for.
func (t *Tables) Alphabet() int {
	return len(t.BadChar)
}

// Last returns the rightmost index of c in the pattern, or -1. Bytes outside
// the alphabet never occur in the pattern.
func (t *Tables) Last(c byte) int {
	if int(c) >= len(t.BadChar) {
		return -1
	}
	return t.BadChar[c]
}

// Preprocess builds the bad-character, border and shift tables for pat over
// an alphabet of nchars byte values. Every pattern byte must be < nchars.
func Preprocess(pat []byte, nchars int) (*Tables, error) {
	if len(pat) == 0 {
		return nil, fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}
	if nchars < 1 || nchars > MaxAlphabet {
		return nil, fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidAlphabet, nchars, MaxAlphabet)
	}
	for i, c := range pat {
		if int(c) >= nchars {
			return nil, fmt.Errorf("%w: byte 0x%02x at %d outside alphabet of %d", ErrInvalidPattern, c, i, nchars)
		}
	}

	m := len(pat)
	t := &Tables{
		Pattern:   append([]byte(nil), pat...),
		BadChar:   make([]int, nchars),
		BorderPos: make([]int, m+1),
		Shift:     make([]int, m+1),
	}
	t.badChars()
	t.strongSuffix()
	t.completeShifts()
	return t, nil
}

// badChars records the rightmost occurrence of every pattern byte.
func (t *Tables) badChars() {
	for c := range t.BadChar {
		t.BadChar[c] = -1
	}
	for i, c := range t.Pattern {
		t.BadChar[c] = i
	}
}

// strongSuffix fills BorderPos and the shifts for suffixes that reoccur
// preceded by a different byte. Unset shifts keep the sentinel m.
func (t *Tables) strongSuffix() {
	pat := t.Pattern
	m := len(pat)
	for k := range t.Shift {
		t.Shift[k] = m
	}

	i, j := m, m+1
	t.BorderPos[i] = j
	for i > 0 {
		for j <= m && pat[i-1] != pat[j-1] {
			if t.Shift[j] == m {
				t.Shift[j] = j - i
			}
			j = t.BorderPos[j]
		}
		i--
		j--
		t.BorderPos[i] = j
	}
}

// completeShifts replaces the remaining sentinels with the shift implied by
// the widest border of the whole pattern, walking the border chain.
func (t *Tables) completeShifts() {
	m := len(t.Pattern)
	j := t.BorderPos[0]
	for i := 0; i <= m; i++ {
		if t.Shift[i] == m {
			t.Shift[i] = j
		}
		if i == j {
			j = t.BorderPos[j]
		}
	}
}
