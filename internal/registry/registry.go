// Package registry implements the kernel-wide process registry (§4.6):
// a pid allocator plus a pid->process map. Generic over the process
// type, the way CargarConfiguracion[T] loads a config file into a
// caller-supplied type, so internal/proc can own the concrete Process
// type without an import cycle back into registry.
package registry

import "github.com/oscore/mipskernel/internal/kgate"

// Registry maps live pid -> process and allocates monotonically
// increasing pids starting at 1. All mutations are serialized by
// internal/kgate's interrupt gate, matching §9's guidance to replace
// interrupt masking with explicit small-scoped locks on real threads.
type Registry[P any] struct {
	gate    kgate.Gate
	nextPid int
	procs   map[int]P
}

// New builds an empty registry. Pid 1 is reserved for the root process
// and is issued by the first call to NextPid.
func New[P any]() *Registry[P] {
	return &Registry[P]{
		nextPid: 1,
		procs:   make(map[int]P),
	}
}

// NextPid returns a fresh, never-reused pid. Wrap-around past the
// platform int range is undefined, per §9.
func (r *Registry[P]) NextPid() int {
	t := r.gate.Disable()
	defer t.Restore()
	pid := r.nextPid
	r.nextPid++
	return pid
}

// Add registers p under pid.
func (r *Registry[P]) Add(pid int, p P) {
	r.gate.Do(func() {
		r.procs[pid] = p
	})
}

// Remove unregisters pid. A no-op if pid is not registered.
func (r *Registry[P]) Remove(pid int) {
	r.gate.Do(func() {
		delete(r.procs, pid)
	})
}

// Get looks up the process registered under pid.
func (r *Registry[P]) Get(pid int) (P, bool) {
	t := r.gate.Disable()
	defer t.Restore()
	p, ok := r.procs[pid]
	return p, ok
}

// Len returns the number of live (registered) processes.
func (r *Registry[P]) Len() int {
	t := r.gate.Disable()
	defer t.Restore()
	return len(r.procs)
}
