package frame

import "testing"

func TestAcquireReleaseRoundTrip(t *testing.T) {
	a := NewAllocator(4)

	got := map[int]bool{}
	for i := 0; i < 4; i++ {
		ppn, err := a.Acquire()
		if err != nil {
			t.Fatalf("Acquire() #%d: %v", i, err)
		}
		if got[ppn] {
			t.Fatalf("frame %d issued twice", ppn)
		}
		got[ppn] = true
	}

	if _, err := a.Acquire(); err != ErrExhausted {
		t.Fatalf("Acquire() on exhausted pool = %v, want ErrExhausted", err)
	}

	for ppn := range got {
		a.Release(ppn)
	}
	if n := a.FreeCount(); n != 4 {
		t.Fatalf("FreeCount() = %d, want 4", n)
	}
}

func TestAcquireBatchAllOrNothing(t *testing.T) {
	a := NewAllocator(3)

	if _, err := a.AcquireBatch(4); err != ErrExhausted {
		t.Fatalf("AcquireBatch(4) on a 3-frame pool = %v, want ErrExhausted", err)
	}
	if n := a.FreeCount(); n != 3 {
		t.Fatalf("failed batch acquire leaked frames: FreeCount() = %d, want 3", n)
	}

	got, err := a.AcquireBatch(3)
	if err != nil {
		t.Fatalf("AcquireBatch(3): %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(got) = %d, want 3", len(got))
	}
	if a.FreeCount() != 0 {
		t.Fatalf("FreeCount() = %d, want 0", a.FreeCount())
	}

	a.ReleaseBatch(got)
	if a.FreeCount() != 3 {
		t.Fatalf("FreeCount() after ReleaseBatch = %d, want 3", a.FreeCount())
	}
}
