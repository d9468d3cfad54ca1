package ksync

import (
	"sync"
	"testing"
)

func TestMutexExclusion(t *testing.T) {
	var mu Mutex
	counter := 0
	const goroutines = 50
	const increments = 100

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			who := id
			for j := 0; j < increments; j++ {
				mu.Acquire(who)
				counter++
				mu.Release(who)
			}
		}(i)
	}
	wg.Wait()

	if counter != goroutines*increments {
		t.Fatalf("counter = %d, want %d", counter, goroutines*increments)
	}
}

func TestMutexIsHeldByCurrent(t *testing.T) {
	var mu Mutex
	who := "owner"

	if mu.IsHeldByCurrent(who) {
		t.Fatal("unheld mutex reports held")
	}

	mu.Acquire(who)
	if !mu.IsHeldByCurrent(who) {
		t.Fatal("held mutex does not report owner")
	}
	if mu.IsHeldByCurrent("someone-else") {
		t.Fatal("mutex reports held by the wrong owner")
	}
	mu.Release(who)
	if mu.IsHeldByCurrent(who) {
		t.Fatal("released mutex still reports held")
	}
}

func TestMutexReleaseByNonOwnerPanics(t *testing.T) {
	var mu Mutex
	mu.Acquire("a")

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic releasing a mutex held by someone else")
		}
	}()
	mu.Release("b")
}
