package ksync

import (
	"sync"

	"github.com/oscore/mipskernel/internal/kpanic"
)

// Condition is a condition variable bound to a specific Mutex at
// construction, per §4.2. Sleep/Wake/WakeAll follow the Mutex's owner
// token so the precondition checks below can be enforced.
type Condition struct {
	mu *Mutex

	waitersMu sync.Mutex
	waiters   []chan struct{}
	numWaiters int
}

// NewCondition binds a new condition variable to mu.
func NewCondition(mu *Mutex) *Condition {
	return &Condition{mu: mu}
}

// Sleep atomically releases the bound mutex and suspends who on this
// condition's private wait queue, reacquiring the mutex before
// returning. who must hold the mutex; this is not re-checked after
// waking, since the mutex is reacquired unconditionally.
func (c *Condition) Sleep(who Holder) {
	kpanic.Assert(c.mu.IsHeldByCurrent(who), "ksync: Sleep without holding the condition's mutex")

	ch := make(chan struct{})
	c.waitersMu.Lock()
	c.waiters = append(c.waiters, ch)
	c.numWaiters++
	c.waitersMu.Unlock()

	c.mu.Release(who)
	<-ch
	c.mu.Acquire(who)
}

// Wake dequeues and readies one waiter, if any. No-op if the queue is
// empty. who must hold the mutex.
func (c *Condition) Wake(who Holder) {
	kpanic.Assert(c.mu.IsHeldByCurrent(who), "ksync: Wake without holding the condition's mutex")

	c.waitersMu.Lock()
	if len(c.waiters) == 0 {
		c.waitersMu.Unlock()
		return
	}
	next := c.waiters[0]
	c.waiters = c.waiters[1:]
	c.numWaiters--
	c.waitersMu.Unlock()

	close(next)
}

// WakeAll wakes every waiter currently queued, by repeating Wake until
// the queue is empty.
func (c *Condition) WakeAll(who Holder) {
	for c.HasWaiters() {
		c.Wake(who)
	}
}

// HasWaiters reports whether any thread is queued on this condition.
func (c *Condition) HasWaiters() bool {
	c.waitersMu.Lock()
	defer c.waitersMu.Unlock()
	return c.numWaiters > 0
}
