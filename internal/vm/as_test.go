package vm

import (
	"encoding/binary"
	"testing"

	"github.com/oscore/mipskernel/internal/frame"
	"github.com/oscore/mipskernel/internal/machine/fake"
)

const pageSize = 256

func newLoadedSpace(t *testing.T, argv []string) (*AddressSpace, *frame.Allocator, *fake.Processor) {
	t.Helper()
	proc := fake.NewProcessor(pageSize, 64)
	fs := fake.NewFileSystem()
	loader := fake.NewLoader()

	exe := fake.NewExecutable(0x400000)
	exe.AddSection("text", pageSize, 2, true, []byte("hello-code"))
	exe.AddSection("data", pageSize, 1, false, []byte("hello-data"))
	loader.Register("p.coff", exe)

	alloc := frame.NewAllocator(64)

	as, err := Load(proc, fs, loader, alloc, "p.coff", argv)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return as, alloc, proc
}

func TestLoadLayoutAndInvariants(t *testing.T) {
	as, alloc, _ := newLoadedSpace(t, []string{"ab", "c"})

	wantPages := 2 + 1 + StackPages + 1
	if as.NumPages() != wantPages {
		t.Fatalf("NumPages() = %d, want %d", as.NumPages(), wantPages)
	}

	seen := map[int]bool{}
	for v, e := range as.Table() {
		if !e.Valid {
			t.Fatalf("entry %d not valid", v)
		}
		if e.VPN != v {
			t.Fatalf("entry %d has VPN %d", v, e.VPN)
		}
		if seen[e.PPN] {
			t.Fatalf("ppn %d issued twice", e.PPN)
		}
		seen[e.PPN] = true
	}

	if as.Table()[0].ReadOnly != true || as.Table()[1].ReadOnly != true {
		t.Fatal("text section pages should be read-only")
	}
	if as.Table()[2].ReadOnly {
		t.Fatal("data section page should not be read-only")
	}

	wantSP := uint32(wantPages-1) * pageSize
	if as.InitialSP() != wantSP {
		t.Fatalf("InitialSP() = %d, want %d", as.InitialSP(), wantSP)
	}
	if as.ArgvAddr() != wantSP {
		t.Fatalf("ArgvAddr() = %d, want %d", as.ArgvAddr(), wantSP)
	}

	if n := alloc.FreeCount(); n != 64-wantPages {
		t.Fatalf("FreeCount() = %d, want %d", n, 64-wantPages)
	}
}

func TestArgvRoundTrip(t *testing.T) {
	as, _, _ := newLoadedSpace(t, []string{"ab", "c"})

	if as.Argc() != 2 {
		t.Fatalf("Argc() = %d, want 2", as.Argc())
	}

	ptrs := make([]byte, 8)
	if n := as.ReadVirtualMemory(as.ArgvAddr(), ptrs, 0, 8); n != 8 {
		t.Fatalf("read pointer table: got %d bytes, want 8", n)
	}
	ptrA := binary.LittleEndian.Uint32(ptrs[0:4])
	ptrB := binary.LittleEndian.Uint32(ptrs[4:8])

	gotA, ok := as.ReadVirtualMemoryString(ptrA, 256)
	if !ok || gotA != "ab" {
		t.Fatalf("arg[0] = (%q, %v), want (\"ab\", true)", gotA, ok)
	}
	gotB, ok := as.ReadVirtualMemoryString(ptrB, 256)
	if !ok || gotB != "c" {
		t.Fatalf("arg[1] = (%q, %v), want (\"c\", true)", gotB, ok)
	}
}

func TestShortCopyOutAtReadOnlyBoundary(t *testing.T) {
	proc := fake.NewProcessor(pageSize, 64)
	fs := fake.NewFileSystem()
	loader := fake.NewLoader()

	exe := fake.NewExecutable(0)
	// VPN 0..2 writable, VPN 3 read-only, exactly matching scenario 2 of
	// §8: "a read-only section occupies VPN 3".
	exe.AddSection("data", pageSize, 3, false, []byte("x"))
	exe.AddSection("rodata", pageSize, 1, true, []byte("y"))
	loader.Register("ro.coff", exe)

	alloc := frame.NewAllocator(64)
	as, err := Load(proc, fs, loader, alloc, "ro.coff", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	vaddr := uint32(3*pageSize - 10)
	buf := make([]byte, 20)
	n := as.WriteVirtualMemory(vaddr, buf, 0, 20)
	if n != 10 {
		t.Fatalf("WriteVirtualMemory = %d, want 10", n)
	}
}

func TestWriteFullyReadOnlyFirstPageRefused(t *testing.T) {
	as, _, _ := newLoadedSpace(t, nil)

	buf := make([]byte, 10)
	n := as.WriteVirtualMemory(0, buf, 0, 10)
	if n != 0 {
		t.Fatalf("WriteVirtualMemory into read-only first page = %d, want 0", n)
	}
}

func TestReadVirtualMemoryClampsAtEnd(t *testing.T) {
	as, _, _ := newLoadedSpace(t, nil)

	lastByte := uint32(as.NumPages()) * pageSize
	buf := make([]byte, 100)
	n := as.ReadVirtualMemory(lastByte-10, buf, 0, 100)
	if n != 10 {
		t.Fatalf("ReadVirtualMemory past the end = %d, want 10", n)
	}
}

func TestReadVirtualMemoryStringNoTerminator(t *testing.T) {
	as, _, _ := newLoadedSpace(t, nil)

	// The data section page (VPN 2) is writable; write 5 non-null bytes
	// and look for a terminator within a 4-byte window.
	dataVPN := uint32(2)
	vaddr := dataVPN * pageSize
	as.WriteVirtualMemory(vaddr, []byte{1, 2, 3, 4, 5}, 0, 5)

	_, ok := as.ReadVirtualMemoryString(vaddr, 3)
	if ok {
		t.Fatal("expected no terminator found within the window")
	}
}

func TestLoadRejectsOversizedArgv(t *testing.T) {
	proc := fake.NewProcessor(pageSize, 64)
	fs := fake.NewFileSystem()
	loader := fake.NewLoader()
	exe := fake.NewExecutable(0)
	exe.AddSection("text", pageSize, 1, true, []byte("x"))
	loader.Register("p.coff", exe)

	alloc := frame.NewAllocator(64)
	big := make([]string, 0)
	for i := 0; i < 100; i++ {
		big = append(big, "0123456789012345678901234567890123456789")
	}

	_, err := Load(proc, fs, loader, alloc, "p.coff", big)
	if err != ErrArgvTooLarge {
		t.Fatalf("Load with oversized argv = %v, want ErrArgvTooLarge", err)
	}
	if n := alloc.FreeCount(); n != 64 {
		t.Fatalf("rejected load leaked frames: FreeCount() = %d, want 64", n)
	}
}
