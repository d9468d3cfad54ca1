// Package frame implements the kernel-wide physical frame allocator
// (§4.5): a free-list of physical page numbers, one per kernel, guarded
// by internal/kgate's interrupt gate the way UserKernel.java guards its
// pageTable freelist with Machine.interrupt().disable()/restore().
package frame

import (
	"fmt"

	"github.com/oscore/mipskernel/internal/kgate"
)

// ErrExhausted is returned by Acquire when no physical frame is free.
// There is no swap in this design; running out is a load failure, not a
// retryable condition.
var ErrExhausted = fmt.Errorf("frame: no physical frames available")

// Allocator is a free-list of physical page numbers in [0, NPhys).
type Allocator struct {
	gate kgate.Gate
	free []int
}

// NewAllocator builds an allocator with every frame in [0, nPhys) free.
func NewAllocator(nPhys int) *Allocator {
	free := make([]int, nPhys)
	for i := range free {
		free[i] = i
	}
	return &Allocator{free: free}
}

// Acquire removes and returns one free frame. Returns ErrExhausted if
// none remain; there is no defragmentation, any free frame is equally
// valid.
func (a *Allocator) Acquire() (int, error) {
	t := a.gate.Disable()
	defer t.Restore()

	if len(a.free) == 0 {
		return 0, ErrExhausted
	}
	ppn := a.free[0]
	a.free = a.free[1:]
	return ppn, nil
}

// AcquireBatch acquires exactly n frames, or none at all. Used by
// address-space construction (§9): allocating frames one at a time and
// leaking the ones already taken on a later failure is a known bug in
// the original; this design instead fails atomically.
func (a *Allocator) AcquireBatch(n int) ([]int, error) {
	t := a.gate.Disable()
	defer t.Restore()

	if len(a.free) < n {
		return nil, ErrExhausted
	}
	got := make([]int, n)
	copy(got, a.free[:n])
	a.free = a.free[n:]
	return got, nil
}

// Release returns ppn to the free list. Releasing a frame not currently
// issued (e.g. double-release) is a kernel-fatal bug in the original
// design; this implementation does not attempt to detect it, since the
// allocator does not track ownership — callers must not double-release.
func (a *Allocator) Release(ppn int) {
	a.gate.Do(func() {
		a.free = append(a.free, ppn)
	})
}

// ReleaseBatch returns every frame in ppns to the free list.
func (a *Allocator) ReleaseBatch(ppns []int) {
	a.gate.Do(func() {
		a.free = append(a.free, ppns...)
	})
}

// FreeCount reports how many frames are currently free, for the
// freeFrames.size + Σ live_processes.numPages == NPhys invariant in §8.
func (a *Allocator) FreeCount() int {
	t := a.gate.Disable()
	defer t.Restore()
	return len(a.free)
}
