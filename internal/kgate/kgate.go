// Package kgate provides the kernel's lowest-level atomicity primitive: a
// scoped acquisition of "interrupts disabled" state with a guaranteed
// restore on every exit path. internal/frame and internal/registry guard
// their free-list/map mutations with it directly; internal/ksync.Mutex
// does not build on it, since it needs owner-tracking and a FIFO wait
// queue that a bare disable/restore bracket doesn't provide — it rolls
// its own sync.Mutex for that bookkeeping instead.
package kgate

import (
	"sync"

	"github.com/oscore/mipskernel/internal/kpanic"
)

// Gate serializes short critical sections the way disabling the machine's
// interrupt line does in the original design. On real hardware this would
// mask the interrupt controller; here it is a single mutex, since the
// kernel core runs on real OS threads rather than a single logical CPU.
type Gate struct {
	mu sync.Mutex
}

// Ticket represents one disabled-interrupts scope. It must be restored
// exactly once, normally via a deferred call to Restore.
type Ticket struct {
	gate *Gate
	done bool
}

// Disable acquires the gate and returns a Ticket that must be restored on
// every exit path, including panics, to release it.
func (g *Gate) Disable() *Ticket {
	g.mu.Lock()
	return &Ticket{gate: g}
}

// Restore releases the gate acquired by the matching Disable call. Calling
// Restore more than once on the same ticket is a kernel-fatal bug.
func (t *Ticket) Restore() {
	kpanic.Assert(!t.done, "kgate: ticket restored twice")
	t.done = true
	t.gate.mu.Unlock()
}

// Do runs fn with the gate held and restores it afterward even if fn
// panics, mirroring the disable/restore bracket used throughout the
// design for frame-list and registry mutations.
func (g *Gate) Do(fn func()) {
	t := g.Disable()
	defer t.Restore()
	fn()
}
