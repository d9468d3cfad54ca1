// Package fdtable implements the per-process file descriptor table
// (§4.8): a fixed 16-slot table with fd 0/1 preassigned to the console,
// deferred unlink via toDelete, and by-value filename comparison (§9:
// the original compares by reference identity, a bug; this design
// compares by value).
package fdtable

import "github.com/oscore/mipskernel/internal/machine"

// MaxFiles is the fixed table size, including the reserved stdin/stdout
// slots.
const MaxFiles = 16

// descriptor is one occupied slot's bookkeeping.
type descriptor struct {
	file     machine.OpenFile
	position int
	filename string
	toDelete bool
	console  bool // console-backed files have no position (§3)
}

// Table is a fixed-size file descriptor table. Slot 0 is stdin, slot 1
// is stdout, populated at construction and never reassigned.
type Table struct {
	fs   machine.FileSystem
	fds  [MaxFiles]*descriptor
}

// New builds a table with fd 0/1 wired to console's read/write ends.
func New(fs machine.FileSystem, console machine.Console) *Table {
	t := &Table{fs: fs}
	t.fds[0] = &descriptor{file: console.OpenForReading(), filename: "STDIN", console: true}
	t.fds[1] = &descriptor{file: console.OpenForWriting(), filename: "STDOUT", console: true}
	return t
}

// findUseableFD returns the first empty slot in [2, MaxFiles), or -1.
// The original off-by-one (`i++` after finding an occupied slot,
// skipping the next slot) is not reproduced, per §9.
func (t *Table) findUseableFD() int {
	for i := 2; i < MaxFiles; i++ {
		if t.fds[i] == nil {
			return i
		}
	}
	return -1
}

// findByName returns the slot whose filename equals name by value, or
// -1. §9: the original compares by reference identity.
func (t *Table) findByName(name string) int {
	for i := 2; i < MaxFiles; i++ {
		if t.fds[i] != nil && t.fds[i].filename == name {
			return i
		}
	}
	return -1
}

// Creat opens name with create-if-missing and installs it in a free
// slot, returning the slot index or -1.
func (t *Table) Creat(name string) int {
	return t.openInternal(name, true)
}

// Open opens an existing name and installs it in a free slot, returning
// the slot index or -1.
func (t *Table) Open(name string) int {
	return t.openInternal(name, false)
}

func (t *Table) openInternal(name string, createIfMissing bool) int {
	slot := t.findUseableFD()
	if slot == -1 {
		return -1
	}
	f, err := t.fs.Open(name, createIfMissing)
	if err != nil {
		return -1
	}
	t.fds[slot] = &descriptor{file: f, filename: name}
	return slot
}

// Read reads up to count bytes from fd into the returned slice. Rejects
// fd == 1, an out-of-range or empty slot, or a negative count. For the
// console slot it forwards without a position; otherwise it reads at
// the stored position and advances it on success. A short read
// (including 0, for EOF) is not an error.
func (t *Table) Read(fd int, count int) ([]byte, bool) {
	if fd == 1 || fd < 0 || fd >= MaxFiles || count < 0 {
		return nil, false
	}
	d := t.fds[fd]
	if d == nil {
		return nil, false
	}

	buf := make([]byte, count)
	var n int
	var err error
	if d.console {
		n, err = d.file.Read(buf)
	} else {
		n, err = d.file.ReadAt(buf, d.position)
		if err == nil {
			d.position += n
		}
	}
	if err != nil {
		return nil, false
	}
	return buf[:n], true
}

// Write writes buf to fd, returning the number of bytes actually
// written. Rejects fd == 0 or an out-of-range or empty slot (signaled
// by returning ok=false).
func (t *Table) Write(fd int, buf []byte) (n int, ok bool) {
	if fd == 0 || fd < 0 || fd >= MaxFiles {
		return 0, false
	}
	d := t.fds[fd]
	if d == nil {
		return 0, false
	}

	var err error
	if d.console {
		n, err = d.file.Write(buf)
	} else {
		n, err = d.file.WriteAt(buf, d.position)
		if err == nil {
			d.position += n
		}
	}
	if err != nil {
		return 0, false
	}
	return n, true
}

// Close closes fd's underlying file and, if it was unlinked while open,
// removes the backing file now. Returns true on success, false if fd
// was already empty or the deferred delete failed.
func (t *Table) Close(fd int) bool {
	if fd < 0 || fd >= MaxFiles {
		return false
	}
	d := t.fds[fd]
	if d == nil {
		return false
	}
	t.fds[fd] = nil

	d.file.Close()
	if d.toDelete {
		return t.fs.Remove(d.filename)
	}
	return true
}

// Unlink removes name immediately, unless it is currently open, in
// which case the delete is deferred until the last Close of that fd.
func (t *Table) Unlink(name string) bool {
	if slot := t.findByName(name); slot != -1 {
		t.fds[slot].toDelete = true
		return true
	}
	return t.fs.Remove(name)
}

// CloseAll closes every occupied slot, for process exit (§4.9).
func (t *Table) CloseAll() {
	for fd := 0; fd < MaxFiles; fd++ {
		if t.fds[fd] != nil {
			t.Close(fd)
		}
	}
}
