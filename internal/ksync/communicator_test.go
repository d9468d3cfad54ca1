package ksync

import (
	"sync"
	"testing"
	"time"
)

// TestCommunicatorPairing mirrors scenario 1 of §8 and the Java source's
// commTest6: two speakers and two listeners, forked in S1,S2,L1,L2
// order, must together observe {4,7} in either assignment.
func TestCommunicatorPairing(t *testing.T) {
	com := NewCommunicator()

	var wg sync.WaitGroup
	wg.Add(4)

	go func() { defer wg.Done(); com.Speak(4) }()
	go func() { defer wg.Done(); com.Speak(7) }()

	var mu sync.Mutex
	var got []int32

	listen := func() {
		defer wg.Done()
		w := com.Listen()
		mu.Lock()
		got = append(got, w)
		mu.Unlock()
	}
	go listen()
	go listen()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("rendezvous never completed")
	}

	if len(got) != 2 {
		t.Fatalf("got %v, want 2 words", got)
	}
	sum := got[0] + got[1]
	if sum != 11 {
		t.Fatalf("listeners observed %v, want {4,7} in some order", got)
	}
}

func TestCommunicatorSingleSpeakerListener(t *testing.T) {
	com := NewCommunicator()

	done := make(chan int32, 1)
	go func() {
		done <- com.Listen()
	}()

	// Give the listener a chance to register before speaking, though
	// correctness must not depend on this ordering.
	time.Sleep(10 * time.Millisecond)
	com.Speak(42)

	select {
	case w := <-done:
		if w != 42 {
			t.Fatalf("listen() = %d, want 42", w)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listen() never returned")
	}
}
