package stream

import (
	"fmt"
	"sync"
)

// bufPool recycles chunk buffers between streams. Buffers of any size are
// pooled; a pooled buffer that is too small is dropped.
var bufPool sync.Pool

// getBuffer returns a buffer of length n, reusing a pooled one when it is
// large enough.
func getBuffer(n int) (buf *[]byte, err error) {
	if v := bufPool.Get(); v != nil {
		b := v.(*[]byte)
		if cap(*b) >= n {
			*b = (*b)[:n]
			return b, nil
		}
	}

	defer func() {
		if r := recover(); r != nil {
			buf = nil
			err = fmt.Errorf("%w: %d bytes: %v", ErrAllocation, n, r)
		}
	}()
	b := make([]byte, n)
	return &b, nil
}

func putBuffer(b *[]byte) {
	bufPool.Put(b)
}
