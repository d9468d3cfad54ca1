package fake

import "github.com/oscore/mipskernel/internal/machine"

// Executable is an in-memory object-file image for tests: its sections'
// data is supplied directly instead of being parsed out of a COFF file.
type Executable struct {
	entry    uint32
	sections []machine.Section
	data     [][]byte // one []byte per section, page-aligned by the builder
}

// NewExecutable builds a fake executable with entry as its entry point.
func NewExecutable(entry uint32) *Executable {
	return &Executable{entry: entry}
}

// AddSection appends a section of numPages pages starting at the next
// available VPN, backed by data (zero-padded to a whole number of
// pages).
func (e *Executable) AddSection(name string, pageSize, numPages int, readOnly bool, data []byte) {
	firstVPN := 0
	for _, s := range e.sections {
		firstVPN += s.NumPages
	}
	e.sections = append(e.sections, machine.Section{
		Name:     name,
		FirstVPN: firstVPN,
		NumPages: numPages,
		ReadOnly: readOnly,
	})

	padded := make([]byte, numPages*pageSize)
	copy(padded, data)
	e.data = append(e.data, padded)
}

func (e *Executable) EntryPoint() uint32 { return e.entry }

func (e *Executable) Sections() []machine.Section { return e.sections }

func (e *Executable) LoadPage(sectionIdx, pageIdx int, dest []byte) error {
	sec := e.data[sectionIdx]
	off := pageIdx * len(dest)
	copy(dest, sec[off:off+len(dest)])
	return nil
}

// Loader resolves executable names against a fixed in-memory set,
// standing in for the out-of-scope COFF parser (§1).
type Loader struct {
	programs map[string]*Executable
}

func NewLoader() *Loader { return &Loader{programs: make(map[string]*Executable)} }

// Register makes name resolve to exe.
func (l *Loader) Register(name string, exe *Executable) {
	l.programs[name] = exe
}

func (l *Loader) Load(fs machine.FileSystem, name string) (machine.Executable, error) {
	exe, ok := l.programs[name]
	if !ok {
		return nil, errNotFound(name)
	}
	return exe, nil
}

type errNotFound string

func (e errNotFound) Error() string { return "fake: no such executable " + string(e) }
