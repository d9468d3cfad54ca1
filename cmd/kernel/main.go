package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/oscore/mipskernel/internal/config"
	"github.com/oscore/mipskernel/internal/frame"
	"github.com/oscore/mipskernel/internal/ksync"
	"github.com/oscore/mipskernel/internal/machine"
	"github.com/oscore/mipskernel/internal/machine/fake"
	"github.com/oscore/mipskernel/internal/proc"
	"github.com/oscore/mipskernel/internal/syscallabi"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <config-file>\n", os.Args[0])
		os.Exit(1)
	}
	configPath := os.Args[1]

	cfg := config.Load(configPath)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := config.InitLogger(cfg.LogLevel, "kernel")
	logger.Info("kernel starting", "config", configPath, "executable", cfg.ExecutableName)

	// The simulated processor/timer/filesystem/console are out of scope
	// (§1); this binary drives the kernel core against the in-memory
	// fakes instead of a real machine, exactly as internal/machine/fake
	// is documented to support.
	cpu := fake.NewProcessor(cfg.PageSize, cfg.NumPhysPages)
	fs := fake.NewFileSystem()
	rawConsole := fake.NewConsole(nil)
	console := machine.NewSynchConsole(rawConsole)
	loader := fake.NewLoader()
	loader.Register(cfg.ExecutableName, bootProgram(cfg.PageSize))
	timer := fake.NewTimer()

	alloc := frame.NewAllocator(cfg.NumPhysPages)
	kernel := proc.NewKernel(proc.Machine{
		Processor:  cpu,
		Timer:      timer,
		FileSystem: fs,
		Console:    console,
		Loader:     loader,
	}, alloc)
	kernel.DefaultClass = cfg.ProcessClass
	timer.SetInterruptHandler(kernel.Alarm.Fire)

	dispatcher := syscallabi.NewDispatcher(kernel)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	halted := make(chan struct{})
	kernel.HaltFn = func() {
		logger.Info("kernel halting")
		close(halted)
	}

	// A background ticker stands in for the real timer device's
	// periodic interrupt (§4.3), advancing the fake clock so anything
	// blocked in kernel.Alarm.WaitUntil eventually wakes.
	go driveTimerTicks(timer, halted)

	// Without a real instruction interpreter the root process has
	// nothing to fetch-and-execute; kernel.Run stands in for that loop
	// by driving a tiny fixed sequence of syscalls through the same
	// trap entry point a real CPU would use, then letting the process
	// exit normally.
	kernel.Run = func(k *proc.Kernel, p *proc.Process) {
		runBootSequence(dispatcher, cpu, k.Alarm, p)
	}

	fmt.Println("Press ENTER to admit the root process...")
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	_ = strings.TrimSpace(line)

	root, err := kernel.Execute(cfg.ExecutableName, cfg.Args)
	if err != nil {
		logger.Error("failed to start root process", "error", err)
		os.Exit(1)
	}
	logger.Info("root process admitted", "pid", root.Pid())

	select {
	case <-halted:
		logger.Info("kernel halted normally")
	case <-sigChan:
		logger.Info("signal received, shutting down")
	}
}

// bootProgram is the only "executable" this reference binary can run:
// a single read-only page, since there is no real object-file parser
// to load anything more interesting (§1 non-goals).
func bootProgram(pageSize int) *fake.Executable {
	exe := fake.NewExecutable(0)
	exe.AddSection("text", pageSize, 1, true, []byte{0})
	return exe
}

// runBootSequence drives the dispatcher through write(1, "...") then
// exit(0), the same path a real syscall trap would take, demonstrating
// the fd table, address space, and syscall dispatcher end to end
// without a real instruction decoder. It waits out a couple of alarm
// ticks first, exercising the timer/alarm collaborator the same way a
// process blocked on a real device interrupt would.
func runBootSequence(d *syscallabi.Dispatcher, cpu *fake.Processor, alarm *ksync.Alarm, p *proc.Process) {
	alarm.WaitUntil(2)

	msg := []byte("hello from the root process\n")
	msgAddr := uint32(cpu.PageSize()) // first writable page, past the boot program's text page

	p.AddressSpace().WriteVirtualMemory(msgAddr, msg, 0, len(msg))

	cpu.WriteRegister(machine.RegCause, machine.CauseSyscall)
	cpu.WriteRegister(machine.RegV0, uint32(syscallabi.Write))
	cpu.WriteRegister(machine.RegA0, 1)
	cpu.WriteRegister(machine.RegA1, msgAddr)
	cpu.WriteRegister(machine.RegA2, uint32(len(msg)))
	d.HandleException(cpu, p)

	cpu.WriteRegister(machine.RegCause, machine.CauseSyscall)
	cpu.WriteRegister(machine.RegV0, uint32(syscallabi.Exit))
	cpu.WriteRegister(machine.RegA0, 0)
	d.HandleException(cpu, p)
}

// driveTimerTicks stands in for the real timer device's periodic
// interrupt, advancing the fake clock every tick until halted fires.
func driveTimerTicks(timer *fake.Timer, halted <-chan struct{}) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			timer.Advance(1)
		case <-halted:
			return
		}
	}
}
