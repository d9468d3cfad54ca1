package proc

import (
	"testing"

	"github.com/oscore/mipskernel/internal/frame"
	"github.com/oscore/mipskernel/internal/machine/fake"
)

const pageSize = 256

func newKernel(t *testing.T) (*Kernel, *fake.Processor) {
	t.Helper()
	cpu := fake.NewProcessor(pageSize, 64)
	fs := fake.NewFileSystem()
	loader := fake.NewLoader()
	console := fake.NewConsole(nil)

	exe := fake.NewExecutable(0)
	exe.AddSection("text", pageSize, 1, true, []byte("hi"))
	loader.Register("p.coff", exe)

	k := NewKernel(Machine{
		Processor:  cpu,
		FileSystem: fs,
		Console:    console,
		Loader:     loader,
	}, frame.NewAllocator(64))
	return k, cpu
}

func TestExecuteThenExitHaltsAsRoot(t *testing.T) {
	k, _ := newKernel(t)

	halted := false
	k.HaltFn = func() { halted = true }

	root, err := k.Execute("p.coff", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if root.Pid() != 1 {
		t.Fatalf("root pid = %d, want 1", root.Pid())
	}

	k.Exit(root, 0)
	if !halted {
		t.Fatal("exiting the root process should cascade a halt")
	}
}

// TestExecChildDisownedOnParentExit exercises disowning at a
// non-root, non-last exit: a middle process (neither pid 1 nor the
// last process standing) exits while it still has a child, and that
// child's ppid should be cleared without the kernel halting.
func TestExecChildDisownedOnParentExit(t *testing.T) {
	k, _ := newKernel(t)
	halted := false
	k.HaltFn = func() { halted = true }

	root, err := k.Execute("p.coff", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	midPid := k.Exec(root, "p.coff", nil)
	if midPid == -1 {
		t.Fatal("Exec should have succeeded")
	}
	mid, ok := k.reg.Get(midPid)
	if !ok {
		t.Fatal("mid should be registered")
	}

	leafPid := k.Exec(mid, "p.coff", nil)
	if leafPid == -1 {
		t.Fatal("Exec should have succeeded")
	}
	leaf, ok := k.reg.Get(leafPid)
	if !ok {
		t.Fatal("leaf should be registered")
	}

	// root, mid and leaf are all still alive: mid exiting is neither
	// the root nor the last process.
	k.Exit(mid, 0)
	if halted {
		t.Fatal("a non-root exit with other live processes should not halt")
	}
	if leaf.Ppid() != 0 {
		t.Fatalf("leaf ppid after mid exit = %d, want 0 (disowned)", leaf.Ppid())
	}
	if _, ok := k.reg.Get(midPid); !ok {
		t.Fatal("mid should stay registered: it wasn't disowned, root may still join it")
	}

	// leaf is disowned but root and mid are still registered, so this
	// still isn't the last process either.
	k.Exit(leaf, 0)
	if halted {
		t.Fatal("exiting a disowned non-last process should not halt")
	}
	if _, ok := k.reg.Get(leafPid); ok {
		t.Fatal("leaf should have self-removed from the registry once disowned")
	}

	// root exiting always cascades a halt, whether or not mid was ever
	// joined — it mirrors the original's unconditional processID==0
	// check.
	k.Exit(root, 0)
	if !halted {
		t.Fatal("exiting the root process should cascade a halt")
	}
}

func TestJoinReturnsChildStatusAndIsOneShot(t *testing.T) {
	k, _ := newKernel(t)
	k.HaltFn = func() {}

	root, err := k.Execute("p.coff", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	childPid := k.Exec(root, "p.coff", nil)
	if childPid == -1 {
		t.Fatal("Exec should have succeeded")
	}
	child, _ := k.reg.Get(childPid)

	done := make(chan struct{})
	go func() {
		k.Exit(child, 7)
		close(done)
	}()
	<-done

	// VPN0 is the read-only text section; VPN1 onward is stack, writable.
	statusAddr := uint32(pageSize)
	if got := k.Join(root, childPid, statusAddr); got != 1 {
		t.Fatalf("Join() = %d, want 1", got)
	}

	buf := make([]byte, 4)
	root.AddressSpace().ReadVirtualMemory(statusAddr, buf, 0, 4)
	status := int32(buf[0]) | int32(buf[1])<<8 | int32(buf[2])<<16 | int32(buf[3])<<24
	if status != 7 {
		t.Fatalf("joined status = %d, want 7", status)
	}

	if got := k.Join(root, childPid, statusAddr); got != -1 {
		t.Fatalf("second Join() = %d, want -1 (one-shot)", got)
	}
}

func TestJoinUnknownChildFails(t *testing.T) {
	k, _ := newKernel(t)
	k.HaltFn = func() {}

	root, err := k.Execute("p.coff", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := k.Join(root, 999, 0); got != -1 {
		t.Fatalf("Join(unrelated pid) = %d, want -1", got)
	}
}

func TestHaltRejectsNonRoot(t *testing.T) {
	k, _ := newKernel(t)
	halted := false
	k.HaltFn = func() { halted = true }

	root, err := k.Execute("p.coff", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	childPid := k.Exec(root, "p.coff", nil)
	child, _ := k.reg.Get(childPid)

	if err := k.Halt(child); err == nil {
		t.Fatal("Halt from a non-root process should be rejected")
	}
	if halted {
		t.Fatal("rejected Halt should not have run the halt callback")
	}

	if err := k.Halt(root); err != nil {
		t.Fatalf("Halt from root: %v", err)
	}
	if !halted {
		t.Fatal("Halt from root should run the halt callback")
	}
}

func TestExecFailureLeavesChildRegistered(t *testing.T) {
	k, _ := newKernel(t)
	k.HaltFn = func() {}

	root, err := k.Execute("p.coff", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	childPid := k.Exec(root, "missing.coff", nil)
	if childPid != -1 {
		t.Fatalf("Exec of a missing file = %d, want -1", childPid)
	}
	if len(root.Children()) != 1 {
		t.Fatal("the failed child should still be on the caller's children list")
	}
}
