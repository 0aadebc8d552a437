package testutil

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/hack-pad/hackpadfs"
	"github.com/hack-pad/hackpadfs/mem"
)

// ReferenceText and ReferencePattern are the classic Boyer-Moore example;
// the pattern occurs at ReferenceOffsets.
const (
	ReferenceText    = "AABAACAADAABAABA"
	ReferencePattern = "AABA"
)

// ReferenceOffsets are the occurrences of ReferencePattern in ReferenceText.
var ReferenceOffsets = []int64{0, 9, 12}

// WithTempDir creates a temporary directory, calls fn with its path,
// and cleans up afterwards.
func WithTempDir(t *testing.T, fn func(dir string)) {
	t.Helper()
	dir := t.TempDir()
	fn(dir)
}

// WriteTempFile writes data to a new file in a per-test temp directory and
// returns its path.
func WriteTempFile(t testing.TB, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.bin")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

// MemFS returns an in-memory file system holding files.
func MemFS(t testing.TB, files map[string][]byte) hackpadfs.FS {
	t.Helper()
	fs, err := mem.NewFS()
	if err != nil {
		t.Fatalf("mem.NewFS: %v", err)
	}
	for name, data := range files {
		if err := hackpadfs.WriteFullFile(fs, name, data, 0644); err != nil {
			t.Fatalf("WriteFullFile(%s): %v", name, err)
		}
	}
	return fs
}

// RandomText returns n bytes drawn from alphabet with a fixed seed. A small
// alphabet produces many overlapping occurrences.
func RandomText(seed int64, n int, alphabet string) []byte {
	r := rand.New(rand.NewSource(seed))
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[r.Intn(len(alphabet))]
	}
	return b
}

// RandomPattern returns a pattern of length m drawn from alphabet.
func RandomPattern(seed int64, m int, alphabet string) []byte {
	return RandomText(seed^0x5bd1e995, m, alphabet)
}

// NaiveFind returns every offset where pat occurs in text, overlapping
// occurrences included, in increasing order.
func NaiveFind(text, pat []byte) []int64 {
	var out []int64
	if len(pat) == 0 {
		return out
	}
	for i := 0; i+len(pat) <= len(text); i++ {
		if bytes.Equal(text[i:i+len(pat)], pat) {
			out = append(out, int64(i))
		}
	}
	return out
}

// RepeatWithNeedle builds a text of n filler bytes with needle written at
// each of the given offsets.
func RepeatWithNeedle(n int, filler byte, needle []byte, offsets ...int) []byte {
	b := bytes.Repeat([]byte{filler}, n)
	for _, off := range offsets {
		copy(b[off:], needle)
	}
	return b
}
