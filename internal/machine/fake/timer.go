package fake

import "sync/atomic"

// Timer is a manually-driven stand-in for the real timer device. Tests
// call Advance to simulate ticks elapsing and firing the interrupt
// handler, instead of waiting on a real clock.
type Timer struct {
	now     atomic.Int64
	handler func()
}

func NewTimer() *Timer { return &Timer{} }

func (t *Timer) GetTime() int64 { return t.now.Load() }

func (t *Timer) SetInterruptHandler(handler func()) { t.handler = handler }

// Advance moves the clock forward by delta ticks and fires the
// registered interrupt handler once, the way the real timer does
// approximately every 500 ticks.
func (t *Timer) Advance(delta int64) {
	t.now.Add(delta)
	if t.handler != nil {
		t.handler()
	}
}
