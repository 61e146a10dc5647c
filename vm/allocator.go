package vm

import (
	"fmt"
	"sync/atomic"
)

// Allocator provides zeroed backing storage for objects, arrays and static
// blocks. A failed allocation returns an error wrapping ErrOutOfMemory.
type Allocator interface {
	Alloc(n int) ([]byte, error)
}

// HeapAllocator allocates from the Go heap.
type HeapAllocator struct{}

func (HeapAllocator) Alloc(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrOutOfMemory, n)
	}
	return make([]byte, n), nil
}

// LimitAllocator fails once the total handed out would exceed Limit bytes.
type LimitAllocator struct {
	Limit int64
	used  atomic.Int64
}

func (a *LimitAllocator) Alloc(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrOutOfMemory, n)
	}
	if a.used.Add(int64(n)) > a.Limit {
		a.used.Add(-int64(n))
		return nil, fmt.Errorf("%w: %d byte request over %d byte limit", ErrOutOfMemory, n, a.Limit)
	}
	return make([]byte, n), nil
}

// Used returns the bytes handed out so far.
func (a *LimitAllocator) Used() int64 { return a.used.Load() }
