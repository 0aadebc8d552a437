package engine

// Range is one partition of a buffer. Alignments in [Start, BaseEnd) belong
// to the partition; End extends the scanned bytes by m-1 so an occurrence
// starting before BaseEnd is seen whole.
type Range struct {
	Start   int
	BaseEnd int
	End     int
}

// Partition splits a buffer of n bytes into at most parts contiguous ranges
// for a pattern of length m. Base ranges have equal size except the last,
// which absorbs the remainder; they never overlap and together cover [0, n).
//
// Search stops at alignment End-m = BaseEnd-1, so every alignment is scanned
// by exactly one partition.
func Partition(n, m, parts int) []Range {
	if parts > n {
		parts = n
	}
	if parts < 1 {
		parts = 1
	}
	part := n / parts

	out := make([]Range, parts)
	for i := range out {
		start := i * part
		baseEnd := start + part
		if i == parts-1 {
			baseEnd = n
		}
		out[i] = Range{
			Start:   start,
			BaseEnd: baseEnd,
			End:     min(baseEnd+m-1, n),
		}
	}
	return out
}
