package ksync

import (
	"container/heap"
	"runtime"
	"sync"
)

// Clock is the minimal timer contract Alarm depends on — satisfied
// structurally by internal/machine.Timer, kept local here so this
// package has no dependency on internal/machine.
type Clock interface {
	GetTime() int64
}

type alarmEntry struct {
	deadline int64
	ready    chan struct{}
}

type alarmHeap []*alarmEntry

func (h alarmHeap) Len() int            { return len(h) }
func (h alarmHeap) Less(i, j int) bool  { return h[i].deadline < h[j].deadline }
func (h alarmHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *alarmHeap) Push(x interface{}) { *h = append(*h, x.(*alarmEntry)) }
func (h *alarmHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Alarm is a per-tick interrupt-driven timed wakeup service, keyed on a
// min-heap of deadlines (§4.3). At most one Alarm should exist per
// kernel; the timer collaborator's interrupt handler should call Fire on
// every tick.
type Alarm struct {
	clock Clock

	mu   sync.Mutex
	heap alarmHeap
}

// NewAlarm constructs an Alarm driven by clock.
func NewAlarm(clock Clock) *Alarm {
	a := &Alarm{clock: clock}
	heap.Init(&a.heap)
	return a
}

// WaitUntil blocks the calling thread for at least x ticks. x <= 0
// returns immediately. Wakeups happen at the first Fire call observing
// now > deadline, not necessarily exactly at deadline.
func (a *Alarm) WaitUntil(x int64) {
	if x <= 0 {
		return
	}

	deadline := a.clock.GetTime() + x
	entry := &alarmEntry{deadline: deadline, ready: make(chan struct{})}

	a.mu.Lock()
	heap.Push(&a.heap, entry)
	a.mu.Unlock()

	<-entry.ready
}

// Fire drains every heap entry whose deadline is strictly less than the
// current time and wakes its thread, then yields the caller. Intended to
// be invoked from the timer collaborator's interrupt handler on every
// tick.
func (a *Alarm) Fire() {
	now := a.clock.GetTime()

	a.mu.Lock()
	var woken []*alarmEntry
	for a.heap.Len() > 0 && a.heap[0].deadline < now {
		e := heap.Pop(&a.heap).(*alarmEntry)
		woken = append(woken, e)
	}
	a.mu.Unlock()

	for _, e := range woken {
		close(e.ready)
	}

	runtime.Gosched()
}

// Pending reports how many threads are currently waiting on the alarm,
// for tests and diagnostics.
func (a *Alarm) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.heap.Len()
}
