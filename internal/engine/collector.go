package engine

import (
	"slices"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// Collector accumulates emitted matches. A Collector's Collect method value
// is an Emitter.
type Collector interface {
	Collect(offset int64, rest []byte)
	Len() int64
}

// SliceCollector keeps every offset in emission order.
type SliceCollector struct {
	offsets []int64
}

// NewSliceCollector creates a collector with room for capacity offsets.
func NewSliceCollector(capacity int) *SliceCollector {
	if capacity < 0 {
		capacity = 0
	}
	return &SliceCollector{offsets: make([]int64, 0, capacity)}
}

// Collect appends offset.
func (c *SliceCollector) Collect(offset int64, _ []byte) {
	c.offsets = append(c.offsets, offset)
}

// Len returns the number of offsets collected.
func (c *SliceCollector) Len() int64 {
	return int64(len(c.offsets))
}

// Offsets returns the collected offsets in emission order.
func (c *SliceCollector) Offsets() []int64 {
	return c.offsets
}

// Sorted returns a sorted, deduplicated copy of the collected offsets.
func (c *SliceCollector) Sorted() []int64 {
	out := slices.Clone(c.offsets)
	slices.Sort(out)
	return slices.Compact(out)
}

// CountingCollector only counts.
type CountingCollector struct {
	n int64
}

func (c *CountingCollector) Collect(int64, []byte) {
	c.n++
}

func (c *CountingCollector) Len() int64 {
	return c.n
}

// BitmapCollector stores offsets in a compressed bitmap, which yields them
// sorted and deduplicated regardless of emission order.
type BitmapCollector struct {
	bm *roaring64.Bitmap
}

// NewBitmapCollector creates an empty bitmap collector.
func NewBitmapCollector() *BitmapCollector {
	return &BitmapCollector{bm: roaring64.New()}
}

// Collect adds offset. Negative offsets are ignored.
func (c *BitmapCollector) Collect(offset int64, _ []byte) {
	if offset < 0 {
		return
	}
	c.bm.Add(uint64(offset))
}

// Len returns the number of distinct offsets.
func (c *BitmapCollector) Len() int64 {
	return int64(c.bm.GetCardinality())
}

// Contains reports whether offset was collected.
func (c *BitmapCollector) Contains(offset int64) bool {
	return offset >= 0 && c.bm.Contains(uint64(offset))
}

// Offsets returns the distinct offsets in increasing order.
func (c *BitmapCollector) Offsets() []int64 {
	raw := c.bm.ToArray()
	out := make([]int64, len(raw))
	for i, v := range raw {
		out[i] = int64(v)
	}
	return out
}
