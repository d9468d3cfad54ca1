// Package ksync implements the kernel's blocking synchronization
// primitives — mutex, condition variable, alarm and communicator. They
// use their own sync.Mutex bookkeeping rather than internal/kgate.
// Generalizes the mutex-plus-sync.Cond-per-resource
// idiom a PCB-queue scheduler would use for its ready queues into a
// reusable primitive with an owner-tracked lock instead of a bare
// sync.Mutex.
package ksync

import (
	"sync"

	"github.com/oscore/mipskernel/internal/kpanic"
)

// Holder identifies the caller of Acquire/Release. Any comparable value
// works; processes use a per-thread token so Mutex can answer
// IsHeldByCurrent without relying on goroutine identity, which Go does
// not expose.
type Holder any

// Mutex is a blocking lock that records its owner and serializes
// contenders in FIFO order, the way §5 requires: "within a single mutex,
// acquire order is FIFO."
type Mutex struct {
	mu      sync.Mutex
	owner   Holder
	held    bool
	waiters []chan struct{}
}

// Acquire blocks until the mutex is free, then takes it. Acquiring a
// mutex one already holds deadlocks, matching the original's lack of
// reentrant locks.
func (m *Mutex) Acquire(who Holder) {
	m.mu.Lock()
	if !m.held {
		m.held = true
		m.owner = who
		m.mu.Unlock()
		return
	}
	ch := make(chan struct{})
	m.waiters = append(m.waiters, ch)
	m.mu.Unlock()

	<-ch

	m.mu.Lock()
	m.held = true
	m.owner = who
	m.mu.Unlock()
}

// Release hands the mutex to the next FIFO waiter, if any, otherwise
// marks it free. Releasing a mutex not held by who is a kernel-fatal
// assertion.
func (m *Mutex) Release(who Holder) {
	m.mu.Lock()
	heldByCaller := m.held && m.owner == who
	if !heldByCaller {
		m.mu.Unlock()
	}
	kpanic.Assert(heldByCaller, "ksync: release of mutex not held by caller")

	if len(m.waiters) == 0 {
		m.held = false
		m.owner = nil
		m.mu.Unlock()
		return
	}
	next := m.waiters[0]
	m.waiters = m.waiters[1:]
	// The mutex stays logically held until the woken waiter claims
	// ownership in Acquire; m.held remains true throughout the handoff.
	m.mu.Unlock()
	close(next)
}

// IsHeldByCurrent reports whether who currently owns the mutex.
func (m *Mutex) IsHeldByCurrent(who Holder) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held && m.owner == who
}
