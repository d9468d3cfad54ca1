// Package proc implements process lifecycle (§4.9): creation, exec,
// exit with parent/child disowning and halt cascade, and join. Grounded
// on UserKernel.java's process map plus UserProcess.java's handleExec/
// handleExit/handleJoin, restructured around the registry/frame/vm/
// fdtable packages and the AddressSpaceOps capability interface §9 asks
// for in place of subclassing.
package proc

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/oscore/mipskernel/internal/fdtable"
	"github.com/oscore/mipskernel/internal/frame"
	"github.com/oscore/mipskernel/internal/ksync"
	"github.com/oscore/mipskernel/internal/machine"
	"github.com/oscore/mipskernel/internal/registry"
)

// Machine bundles the collaborators a Kernel needs, per §6.
type Machine struct {
	Processor  machine.Processor
	Timer      machine.Timer
	FileSystem machine.FileSystem
	Console    machine.Console
	Loader     machine.ObjectLoader
}

// Kernel owns every piece of kernel-wide state: the process registry,
// the physical frame allocator, the process-class registry, and the
// machine collaborators new processes are built against.
type Kernel struct {
	mach    Machine
	alloc   *frame.Allocator
	reg     *registry.Registry[*Process]
	classes *ClassRegistry

	// Alarm is the timed-wakeup service built on mach.Timer, nil if no
	// timer collaborator was supplied. The timer's interrupt handler
	// should call Alarm.Fire on every tick (cmd/kernel wires this up).
	Alarm *ksync.Alarm

	// DefaultClass names the process class Execute uses, resolved via
	// classes.Resolve. Set at construction from configuration (§6).
	DefaultClass string

	// Run, if set, is invoked in its own goroutine once a process's
	// address space is loaded, standing in for the out-of-scope
	// instruction-interpreter loop that would actually execute the
	// program and eventually call Exit when it traps the exit syscall.
	// Tests that only exercise lifecycle bookkeeping can leave it nil
	// and call Exit directly.
	Run func(k *Kernel, p *Process)

	// HaltFn is invoked by the Halt syscall once it has verified the
	// caller is the root process, and by Exit's halt cascade. Per §4.9
	// it does not return; callers must not touch kernel state
	// afterward. Defaults to a no-op so unit tests can observe the
	// cascade without tearing down a real process.
	HaltFn func()

	mu       sync.Mutex
	haltOnce bool
}

// NewKernel builds a kernel ready to create its first process. If
// mach.Timer is non-nil, an Alarm is built against it; the caller is
// responsible for routing the timer's interrupt handler to Alarm.Fire.
func NewKernel(mach Machine, alloc *frame.Allocator) *Kernel {
	k := &Kernel{
		mach:         mach,
		alloc:        alloc,
		reg:          registry.New[*Process](),
		classes:      NewClassRegistry(),
		DefaultClass: "base",
		HaltFn:       func() {},
	}
	if mach.Timer != nil {
		k.Alarm = ksync.NewAlarm(mach.Timer)
	}
	return k
}

// RegisterClass exposes the kernel's class registry for extensions that
// ship their own AddressSpaceOps implementation (§9).
func (k *Kernel) RegisterClass(name string, f ClassFactory) {
	k.classes.Register(name, f)
}

// Process is one kernel process: a pid, its parent, its address space,
// its file descriptor table, and the bookkeeping exec/exit/join need.
type Process struct {
	kernel *Kernel

	pid int

	mu       sync.Mutex
	ppid     int
	children []int

	as  AddressSpaceOps
	fds *fdtable.Table

	done       chan struct{}
	exitStatus int32
}

func (p *Process) Pid() int                      { return p.pid }
func (p *Process) AddressSpace() AddressSpaceOps { return p.as }
func (p *Process) Files() *fdtable.Table         { return p.fds }

// Ppid returns the current parent pid, 0 once disowned.
func (p *Process) Ppid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ppid
}

// Children returns a snapshot of the live children list.
func (p *Process) Children() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.children...)
}

// ExitStatus returns the status passed to Exit, valid only once Wait()
// has unblocked.
func (p *Process) ExitStatus() int32 { return p.exitStatus }

// Wait returns a channel that's closed once this process's underlying
// thread has terminated, for Join to block on.
func (p *Process) Wait() <-chan struct{} { return p.done }

// newProcess allocates a pid, registers it immediately (even before its
// address space is built — matching UserProcess's constructor, which
// adds to UserKernel.processes before execute() is ever attempted), and
// wires its file descriptor table to the kernel's console.
func (k *Kernel) newProcess() *Process {
	p := &Process{
		kernel: k,
		pid:    k.reg.NextPid(),
		done:   make(chan struct{}),
		fds:    fdtable.New(k.mach.FileSystem, k.mach.Console),
	}
	k.reg.Add(p.pid, p)
	return p
}

// Execute loads name as a fresh root process (pid 1) and, on success,
// starts it running via k.Run. This is the kernel's bootstrap entry
// point; every later process is created through Exec instead.
func (k *Kernel) Execute(name string, argv []string) (*Process, error) {
	p := k.newProcess()
	if err := p.load(name, argv); err != nil {
		return p, err
	}
	if k.Run != nil {
		go k.Run(k, p)
	}
	return p, nil
}

func (p *Process) load(name string, argv []string) error {
	factory, err := p.kernel.classes.Resolve(p.kernel.DefaultClass)
	if err != nil {
		return err
	}
	as, err := factory.New(p.kernel.mach.Processor, p.kernel.mach.FileSystem, p.kernel.mach.Loader, p.kernel.alloc, name, argv)
	if err != nil {
		return err
	}
	p.as = as
	return nil
}

// Exec implements the exec syscall (§4.9): create a child, set its
// ppid, append it to the caller's children unconditionally, then
// attempt to load and start it. The child stays registered whatever
// state its load reached — the registry is not rolled back on a failed
// exec, matching the original's own behavior of registering in the
// constructor before execute() runs.
func (k *Kernel) Exec(caller *Process, name string, argv []string) int {
	child := k.newProcess()

	child.mu.Lock()
	child.ppid = caller.pid
	child.mu.Unlock()

	caller.mu.Lock()
	caller.children = append(caller.children, child.pid)
	caller.mu.Unlock()

	if err := child.load(name, argv); err != nil {
		return -1
	}
	if k.Run != nil {
		go k.Run(k, child)
	}
	return child.pid
}

// Exit implements the exit syscall and the implicit exit any fatal,
// non-syscall exception triggers (§4.9, §7): close every descriptor,
// disown every child, tear down the address space, record status, then
// either cascade a halt (root process, or the last process standing) or
// terminate this process's thread, self-removing from the registry only
// if some parent has already disowned it.
func (k *Kernel) Exit(p *Process, status int32) {
	p.fds.CloseAll()

	for _, childPid := range p.Children() {
		if child, ok := k.reg.Get(childPid); ok {
			child.mu.Lock()
			child.ppid = 0
			child.mu.Unlock()
		}
	}

	p.exitStatus = status
	p.as.Teardown(k.alloc)

	isRoot := p.pid == 1
	isLast := k.reg.Len() == 1
	if isRoot || isLast {
		k.cascadeHalt()
		return
	}

	if p.Ppid() == 0 {
		k.reg.Remove(p.pid)
	}
	close(p.done)
}

// Join implements the join syscall (§4.9): -1 if pid is not (or is no
// longer — a process may be joined at most once) in the caller's
// children list; otherwise block for the child's thread to finish, copy
// its 4-byte little-endian exit status to statusAddr, and retire the
// child from both the registry and the caller's children list.
func (k *Kernel) Join(caller *Process, pid int, statusAddr uint32) int {
	caller.mu.Lock()
	idx := -1
	for i, c := range caller.children {
		if c == pid {
			idx = i
			break
		}
	}
	caller.mu.Unlock()
	if idx == -1 {
		return -1
	}

	child, ok := k.reg.Get(pid)
	if !ok {
		return -1
	}

	<-child.Wait()

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(child.ExitStatus()))
	n := caller.as.WriteVirtualMemory(statusAddr, buf[:], 0, 4)

	k.reg.Remove(pid)
	caller.mu.Lock()
	caller.children = append(caller.children[:idx], caller.children[idx+1:]...)
	caller.mu.Unlock()

	if n == 4 {
		return 1
	}
	return 0
}

// Halt implements the halt syscall (§4.9): only the root process (pid
// 1) may invoke it; every other caller gets a no-op.
func (k *Kernel) Halt(caller *Process) error {
	if caller.pid != 1 {
		return fmt.Errorf("proc: halt called by non-root pid %d", caller.pid)
	}
	k.cascadeHalt()
	return nil
}

// cascadeHalt runs HaltFn exactly once, however many processes race to
// trigger it (the last-process case in Exit, or an explicit Halt
// syscall arriving concurrently).
func (k *Kernel) cascadeHalt() {
	k.mu.Lock()
	already := k.haltOnce
	k.haltOnce = true
	k.mu.Unlock()
	if !already {
		k.HaltFn()
	}
}
