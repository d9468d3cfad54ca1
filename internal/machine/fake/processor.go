// Package fake provides in-memory stand-ins for the processor, timer,
// file-system and console collaborators (§6), for tests and for the
// reference cmd/kernel binary this repo ships instead of a real
// simulated MIPS machine. Grounded on mit-pdos-biscuit's fs_test.go /
// ufs_test.go convention of hand-built in-memory fakes rather than a
// mocking library.
package fake

import "github.com/oscore/mipskernel/internal/machine"

// Processor is an in-memory stand-in for the real simulated processor.
// It owns flat physical memory and a register file; it does not execute
// any instructions — tests drive it directly.
type Processor struct {
	regs       [8]uint32
	pageSize   int
	numPhys    int
	mem        []byte
	pageTable  []machine.TranslationEntry
	exceptionH func()
}

// NewProcessor builds a fake processor with pageSize-byte pages and
// numPhys physical pages of backing memory.
func NewProcessor(pageSize, numPhys int) *Processor {
	return &Processor{
		pageSize: pageSize,
		numPhys:  numPhys,
		mem:      make([]byte, pageSize*numPhys),
	}
}

func (p *Processor) NumUserRegisters() int { return len(p.regs) }

func (p *Processor) ReadRegister(reg machine.Reg) uint32 { return p.regs[reg] }

func (p *Processor) WriteRegister(reg machine.Reg, value uint32) { p.regs[reg] = value }

func (p *Processor) PageFromAddress(vaddr uint32) int { return int(vaddr) / p.pageSize }

func (p *Processor) OffsetFromAddress(vaddr uint32) int { return int(vaddr) % p.pageSize }

func (p *Processor) PageSize() int { return p.pageSize }

func (p *Processor) NumPhysPages() int { return p.numPhys }

func (p *Processor) Memory() []byte { return p.mem }

func (p *Processor) AdvancePC() {
	p.regs[machine.RegPC] += 4
}

func (p *Processor) SetPageTable(table []machine.TranslationEntry) {
	p.pageTable = table
}

func (p *Processor) PageTable() []machine.TranslationEntry { return p.pageTable }

func (p *Processor) SetExceptionHandler(handler func()) { p.exceptionH = handler }

// RaiseException invokes the registered exception handler, simulating a
// trap with RegCause already set by the caller.
func (p *Processor) RaiseException() {
	if p.exceptionH != nil {
		p.exceptionH()
	}
}
