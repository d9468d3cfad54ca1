// Package vm implements the per-process virtual address space (§4.7):
// page-table construction from an object-file image, bounded
// copy-in/copy-out against user memory, and frame reclamation on
// teardown. Grounded on UserProcess.java's load/readVirtualMemory/
// writeVirtualMemory, restructured around internal/machine's collaborator
// interfaces and internal/frame's batch allocator (§9: frames are pulled
// in one batch, not one-by-one, so a failed load never leaks frames).
package vm

import (
	"encoding/binary"
	"fmt"

	"github.com/oscore/mipskernel/internal/frame"
	"github.com/oscore/mipskernel/internal/machine"
)

// StackPages is the fixed number of stack pages appended below the argv
// page, per §3.
const StackPages = 8

// AddressSpace is one process's page table plus the bookkeeping needed
// to start it running and to copy to/from its virtual memory.
type AddressSpace struct {
	proc  machine.Processor
	table []machine.TranslationEntry

	numPages  int
	initialPC uint32
	initialSP uint32
	argc      int
	argvAddr  uint32
}

// ErrArgvTooLarge is returned when the packed argv table and strings
// don't fit in a single page.
var ErrArgvTooLarge = fmt.Errorf("vm: argv does not fit in one page")

// ErrFragmentedExecutable is returned when an executable's sections are
// not contiguous starting at VPN 0.
var ErrFragmentedExecutable = fmt.Errorf("vm: executable sections are not contiguous from VPN 0")

// Load parses name via loader, lays out its address space per §3, loads
// every section into freshly allocated frames, and packs argv into the
// final page. On any failure, no frames are left allocated.
func Load(proc machine.Processor, fs machine.FileSystem, loader machine.ObjectLoader, alloc *frame.Allocator, name string, argv []string) (*AddressSpace, error) {
	exe, err := loader.Load(fs, name)
	if err != nil {
		return nil, fmt.Errorf("vm: load %q: %w", name, err)
	}

	sections := exe.Sections()
	sectionPages := 0
	for _, s := range sections {
		if s.FirstVPN != sectionPages {
			return nil, ErrFragmentedExecutable
		}
		sectionPages += s.NumPages
	}

	pageSize := proc.PageSize()
	argvSize, argc := packedArgvSize(argv)
	if argvSize > pageSize {
		return nil, ErrArgvTooLarge
	}

	numPages := sectionPages + StackPages + 1
	frames, err := alloc.AcquireBatch(numPages)
	if err != nil {
		return nil, fmt.Errorf("vm: %w", err)
	}

	table := make([]machine.TranslationEntry, numPages)
	for vpn := 0; vpn < numPages; vpn++ {
		table[vpn] = machine.TranslationEntry{
			VPN:   vpn,
			PPN:   frames[vpn],
			Valid: true,
		}
	}
	for _, s := range sections {
		for p := 0; p < s.NumPages; p++ {
			table[s.FirstVPN+p].ReadOnly = s.ReadOnly
		}
	}

	as := &AddressSpace{proc: proc, table: table, numPages: numPages}

	mem := proc.Memory()
	for si, s := range sections {
		for p := 0; p < s.NumPages; p++ {
			vpn := s.FirstVPN + p
			ppn := table[vpn].PPN
			dest := mem[ppn*pageSize : ppn*pageSize+pageSize]
			if err := exe.LoadPage(si, p, dest); err != nil {
				alloc.ReleaseBatch(frames)
				return nil, fmt.Errorf("vm: load section %q page %d: %w", s.Name, p, err)
			}
		}
	}

	as.initialPC = exe.EntryPoint()
	as.initialSP = uint32(numPages-1) * uint32(pageSize)
	as.argvAddr = as.initialSP
	as.argc = argc

	if err := as.writeArgv(argv); err != nil {
		alloc.ReleaseBatch(frames)
		return nil, err
	}

	return as, nil
}

func packedArgvSize(argv []string) (size int, argc int) {
	argc = len(argv)
	size = 4 * argc
	for _, a := range argv {
		size += len(a) + 1
	}
	return size, argc
}

// writeArgv packs argc pointers followed by the null-terminated argument
// strings into the final page, per §3 and §8's round-trip property.
func (as *AddressSpace) writeArgv(argv []string) error {
	argc := len(argv)
	ptrTableSize := 4 * argc

	strBuf := make([]byte, 0, 64)
	offsets := make([]uint32, argc)
	for i, a := range argv {
		offsets[i] = as.argvAddr + uint32(ptrTableSize) + uint32(len(strBuf))
		strBuf = append(strBuf, []byte(a)...)
		strBuf = append(strBuf, 0)
	}

	full := make([]byte, ptrTableSize+len(strBuf))
	for i, off := range offsets {
		binary.LittleEndian.PutUint32(full[i*4:], off)
	}
	copy(full[ptrTableSize:], strBuf)

	n := as.WriteVirtualMemory(as.argvAddr, full, 0, len(full))
	if n != len(full) {
		return fmt.Errorf("vm: short argv write (%d/%d bytes)", n, len(full))
	}
	return nil
}

// Activate installs this address space's page table as the processor's
// current one, for when this process is scheduled to run.
func (as *AddressSpace) Activate() {
	as.proc.SetPageTable(as.table)
}

func (as *AddressSpace) NumPages() int     { return as.numPages }
func (as *AddressSpace) InitialPC() uint32 { return as.initialPC }
func (as *AddressSpace) InitialSP() uint32 { return as.initialSP }
func (as *AddressSpace) Argc() int         { return as.argc }
func (as *AddressSpace) ArgvAddr() uint32  { return as.argvAddr }

// Table returns the translation entries, for invariant checks in tests.
func (as *AddressSpace) Table() []machine.TranslationEntry { return as.table }

// ReadVirtualMemory copies up to len bytes starting at vaddr into
// buf[off:], clamped to the address space's extent. Never faults the
// caller; returns the number of bytes actually transferred, which may be
// less than requested (including 0) for an out-of-range or zero-length
// request.
func (as *AddressSpace) ReadVirtualMemory(vaddr uint32, buf []byte, off, length int) int {
	if length <= 0 {
		return 0
	}
	pageSize := as.proc.PageSize()
	mem := as.proc.Memory()

	vpn := int(vaddr) / pageSize
	inPageOff := int(vaddr) % pageSize

	transferred := 0
	remaining := length
	for remaining > 0 {
		if vpn >= as.numPages {
			break
		}
		entry := &as.table[vpn]
		entry.Used = true

		n := pageSize - inPageOff
		if n > remaining {
			n = remaining
		}
		base := entry.PPN*pageSize + inPageOff
		copy(buf[off+transferred:off+transferred+n], mem[base:base+n])

		transferred += n
		remaining -= n
		vpn++
		inPageOff = 0
	}
	return transferred
}

// WriteVirtualMemory is the symmetric copy-out: it marks touched entries
// dirty and refuses to write into a read-only entry, stopping (and
// returning the count transferred so far) the moment it would. The
// per-page byte count is computed from the remaining counter, not the
// total length, so multi-page writes are correct (§9).
func (as *AddressSpace) WriteVirtualMemory(vaddr uint32, buf []byte, off, length int) int {
	if length <= 0 {
		return 0
	}
	pageSize := as.proc.PageSize()
	mem := as.proc.Memory()

	vpn := int(vaddr) / pageSize
	inPageOff := int(vaddr) % pageSize

	transferred := 0
	remaining := length
	for remaining > 0 {
		if vpn >= as.numPages {
			break
		}
		entry := &as.table[vpn]
		if entry.ReadOnly {
			break
		}
		entry.Used = true
		entry.Dirty = true

		n := pageSize - inPageOff
		if n > remaining {
			n = remaining
		}
		base := entry.PPN*pageSize + inPageOff
		copy(mem[base:base+n], buf[off+transferred:off+transferred+n])

		transferred += n
		remaining -= n
		vpn++
		inPageOff = 0
	}
	return transferred
}

// ReadVirtualMemoryString reads a null-terminated string of at most
// maxLen bytes (not counting the terminator). Returns ok=false,
// distinct from an empty string, if no terminator is found within the
// maxLen+1 byte read window.
func (as *AddressSpace) ReadVirtualMemoryString(vaddr uint32, maxLen int) (s string, ok bool) {
	buf := make([]byte, maxLen+1)
	n := as.ReadVirtualMemory(vaddr, buf, 0, maxLen+1)

	for i := 0; i < n; i++ {
		if buf[i] == 0 {
			return string(buf[:i]), true
		}
	}
	return "", false
}

// Teardown returns every physical frame to alloc and invalidates every
// entry.
func (as *AddressSpace) Teardown(alloc *frame.Allocator) {
	ppns := make([]int, 0, len(as.table))
	for i := range as.table {
		if as.table[i].Valid {
			ppns = append(ppns, as.table[i].PPN)
		}
		as.table[i].Valid = false
	}
	alloc.ReleaseBatch(ppns)
}
