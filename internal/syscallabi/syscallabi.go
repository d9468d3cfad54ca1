// Package syscallabi is the trap entry point and syscall dispatch table
// (§4.9, §7). It decodes the raw register-file arguments a trapped
// syscall arrives with, calls into internal/proc and internal/fdtable
// for the actual semantics, and encodes results back into regV0.
// Grounded on UserProcess.java's handleSyscall switch, restructured as
// a handler table keyed by syscall number rather than switched on
// inline.
package syscallabi

import (
	"strings"

	"github.com/oscore/mipskernel/internal/machine"
	"github.com/oscore/mipskernel/internal/proc"
)

// Syscall numbers, fixed by §6's ABI.
const (
	Halt   = 0
	Exit   = 1
	Exec   = 2
	Join   = 3
	Creat  = 4
	Open   = 5
	Read   = 6
	Write  = 7
	Close  = 8
	Unlink = 9
)

// maxSyscallStringLen bounds how long a filename or exec argument the
// kernel will copy in from user memory, per §3's "names are bounded,
// not null-terminated without limit".
const maxSyscallStringLen = 256

// execSuffix is the only extension exec() will load, matching
// UserProcess.java's handleExec check exactly: "coff", not ".coff" —
// endsWith doesn't require the dot either. There is no upper bound on
// argc beyond argc < 0; the original doesn't impose one either.
const execSuffix = "coff"

// SyscallHandler implements one syscall given its four raw argument registers
// and the calling process; it returns the value to install in regV0.
type SyscallHandler func(k *proc.Kernel, p *proc.Process, a0, a1, a2, a3 uint32) uint32

// Dispatcher maps syscall numbers to handlers and drives the processor
// exception trap.
type Dispatcher struct {
	kernel   *proc.Kernel
	handlers map[int]SyscallHandler
}

// NewDispatcher builds a dispatcher with every syscall in §4.9 wired up.
func NewDispatcher(k *proc.Kernel) *Dispatcher {
	d := &Dispatcher{kernel: k, handlers: make(map[int]SyscallHandler)}
	d.handlers[Halt] = handleHalt
	d.handlers[Exit] = handleExit
	d.handlers[Exec] = handleExec
	d.handlers[Join] = handleJoin
	d.handlers[Creat] = handleCreat
	d.handlers[Open] = handleOpen
	d.handlers[Read] = handleRead
	d.handlers[Write] = handleWrite
	d.handlers[Close] = handleClose
	d.handlers[Unlink] = handleUnlink
	return d
}

// HandleException is the processor's registered exception handler
// (machine.Processor.SetExceptionHandler): a syscall cause dispatches
// through the handler table and advances the PC past the syscall
// instruction; any other cause is fatal to the offending process (§7).
func (d *Dispatcher) HandleException(cpu machine.Processor, p *proc.Process) {
	cause := cpu.ReadRegister(machine.RegCause)
	if cause != machine.CauseSyscall {
		d.kernel.Exit(p, 1)
		return
	}

	num := int(cpu.ReadRegister(machine.RegV0))
	a0 := cpu.ReadRegister(machine.RegA0)
	a1 := cpu.ReadRegister(machine.RegA1)
	a2 := cpu.ReadRegister(machine.RegA2)
	a3 := cpu.ReadRegister(machine.RegA3)

	h, ok := d.handlers[num]
	if !ok {
		d.kernel.Exit(p, 1)
		return
	}

	result := h(d.kernel, p, a0, a1, a2, a3)
	cpu.WriteRegister(machine.RegV0, result)
	cpu.AdvancePC()
}

func handleHalt(k *proc.Kernel, p *proc.Process, a0, a1, a2, a3 uint32) uint32 {
	k.Halt(p)
	return 0
}

func handleExit(k *proc.Kernel, p *proc.Process, a0, a1, a2, a3 uint32) uint32 {
	k.Exit(p, int32(a0))
	return 0
}

func handleExec(k *proc.Kernel, p *proc.Process, a0, a1, a2, a3 uint32) uint32 {
	name, ok := p.AddressSpace().ReadVirtualMemoryString(a0, maxSyscallStringLen)
	if !ok {
		return ^uint32(0)
	}
	if !strings.HasSuffix(name, execSuffix) {
		return ^uint32(0)
	}

	argc := int32(a1)
	if argc < 0 {
		return ^uint32(0)
	}

	argv := make([]string, 0, argc)
	ptrs := make([]byte, 4*argc)
	if n := p.AddressSpace().ReadVirtualMemory(a2, ptrs, 0, len(ptrs)); n != len(ptrs) {
		return ^uint32(0)
	}
	for i := 0; i < int(argc); i++ {
		ptr := leUint32(ptrs[i*4:])
		arg, ok := p.AddressSpace().ReadVirtualMemoryString(ptr, maxSyscallStringLen)
		if !ok {
			return ^uint32(0)
		}
		argv = append(argv, arg)
	}

	childPid := k.Exec(p, name, argv)
	return uint32(int32(childPid))
}

func handleJoin(k *proc.Kernel, p *proc.Process, a0, a1, a2, a3 uint32) uint32 {
	result := k.Join(p, int(int32(a0)), a1)
	return uint32(int32(result))
}

func handleCreat(k *proc.Kernel, p *proc.Process, a0, a1, a2, a3 uint32) uint32 {
	name, ok := p.AddressSpace().ReadVirtualMemoryString(a0, maxSyscallStringLen)
	if !ok {
		return ^uint32(0)
	}
	return uint32(int32(p.Files().Creat(name)))
}

func handleOpen(k *proc.Kernel, p *proc.Process, a0, a1, a2, a3 uint32) uint32 {
	name, ok := p.AddressSpace().ReadVirtualMemoryString(a0, maxSyscallStringLen)
	if !ok {
		return ^uint32(0)
	}
	return uint32(int32(p.Files().Open(name)))
}

func handleRead(k *proc.Kernel, p *proc.Process, a0, a1, a2, a3 uint32) uint32 {
	fd := int(int32(a0))
	count := int(int32(a2))
	if count < 0 {
		return ^uint32(0)
	}

	data, ok := p.Files().Read(fd, count)
	if !ok {
		return ^uint32(0)
	}

	n := p.AddressSpace().WriteVirtualMemory(a1, data, 0, len(data))
	return uint32(int32(n))
}

func handleWrite(k *proc.Kernel, p *proc.Process, a0, a1, a2, a3 uint32) uint32 {
	fd := int(int32(a0))
	count := int(int32(a2))
	if count < 0 {
		return ^uint32(0)
	}

	buf := make([]byte, count)
	got := p.AddressSpace().ReadVirtualMemory(a1, buf, 0, count)
	if got != count {
		return ^uint32(0)
	}

	n, ok := p.Files().Write(fd, buf)
	if !ok {
		return ^uint32(0)
	}
	return uint32(int32(n))
}

func handleClose(k *proc.Kernel, p *proc.Process, a0, a1, a2, a3 uint32) uint32 {
	if !p.Files().Close(int(int32(a0))) {
		return ^uint32(0)
	}
	return 0
}

func handleUnlink(k *proc.Kernel, p *proc.Process, a0, a1, a2, a3 uint32) uint32 {
	name, ok := p.AddressSpace().ReadVirtualMemoryString(a0, maxSyscallStringLen)
	if !ok {
		return ^uint32(0)
	}
	if !p.Files().Unlink(name) {
		return ^uint32(0)
	}
	return 0
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
