package native

import (
	"fmt"
	"sync"
	"sync/atomic"

	"modernc.org/memory"
)

// heap serves Block memory from pages mapped outside the Go heap (mmap on
// unix, VirtualAlloc on Windows). memory.Allocator is not safe for
// concurrent use.
var heap struct {
	mu sync.Mutex
	a  memory.Allocator
}

// calloc returns n zeroed bytes of native memory. Its capacity is the usable
// size of the allocation.
func calloc(n int) []byte {
	heap.mu.Lock()
	defer heap.mu.Unlock()
	mem, err := heap.a.Calloc(n)
	if err != nil {
		panic(fmt.Sprintf("native: allocating %d bytes: %v", n, err))
	}
	return mem
}

// observeRelease, when set, sees memory just before it is returned.
var observeRelease atomic.Pointer[func(mem []byte)]

// release returns memory obtained from calloc. The caller zeroes it first.
func release(mem []byte) {
	if observe := observeRelease.Load(); observe != nil {
		(*observe)(mem)
	}
	heap.mu.Lock()
	defer heap.mu.Unlock()
	if err := heap.a.Free(mem); err != nil {
		panic(fmt.Sprintf("native: releasing %d bytes: %v", cap(mem), err))
	}
}
