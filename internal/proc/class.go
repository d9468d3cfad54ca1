package proc

import (
	"fmt"
	"reflect"

	"github.com/oscore/mipskernel/internal/frame"
	"github.com/oscore/mipskernel/internal/machine"
	"github.com/oscore/mipskernel/internal/vm"
)

// AddressSpaceOps is the capability interface §9 asks for in place of
// subclassing UserProcess: whatever loads and unloads a process's
// address space. *vm.AddressSpace satisfies it structurally; a
// demand-paged or networked extension would supply its own
// implementation without touching this package.
type AddressSpaceOps interface {
	Activate()
	NumPages() int
	InitialPC() uint32
	InitialSP() uint32
	Argc() int
	ArgvAddr() uint32
	ReadVirtualMemory(vaddr uint32, buf []byte, off, length int) int
	WriteVirtualMemory(vaddr uint32, buf []byte, off, length int) int
	ReadVirtualMemoryString(vaddr uint32, maxLen int) (string, bool)
	Teardown(alloc *frame.Allocator)
}

// ClassFactory constructs a fresh AddressSpaceOps for one process class,
// the way UserProcess.newUserProcess picks between UserProcess and
// VMProcess.
type ClassFactory interface {
	New(proc machine.Processor, fs machine.FileSystem, loader machine.ObjectLoader, alloc *frame.Allocator, name string, argv []string) (AddressSpaceOps, error)
}

// baseClass is the only class this core ships: a flat, non-paged
// address space (§4.7). A VM-paged or networked extension registers its
// own ClassFactory under its own name via RegisterClass.
type baseClass struct{}

func (baseClass) New(proc machine.Processor, fs machine.FileSystem, loader machine.ObjectLoader, alloc *frame.Allocator, name string, argv []string) (AddressSpaceOps, error) {
	return vm.Load(proc, fs, loader, alloc, name, argv)
}

// ClassRegistry resolves the configuration key naming which process
// class to instantiate (§6) against a small known set, exact name match
// first.
type ClassRegistry struct {
	known map[string]ClassFactory
}

// NewClassRegistry builds a registry pre-populated with "base".
func NewClassRegistry() *ClassRegistry {
	return &ClassRegistry{known: map[string]ClassFactory{
		"base": baseClass{},
	}}
}

// Register adds or replaces the factory for name.
func (r *ClassRegistry) Register(name string, f ClassFactory) {
	r.known[name] = f
}

// Resolve looks up name by exact match, then falls back to matching the
// registered factories' own reflected type name — standing in for
// UserProcess.newUserProcess's Lib.constructObject fallback, which
// resolves an unrecognized class name via reflection rather than a
// hard-coded switch.
func (r *ClassRegistry) Resolve(name string) (ClassFactory, error) {
	if f, ok := r.known[name]; ok {
		return f, nil
	}
	for _, f := range r.known {
		t := reflect.TypeOf(f)
		if t.Name() == name || t.String() == name {
			return f, nil
		}
	}
	return nil, fmt.Errorf("proc: unknown process class %q", name)
}
