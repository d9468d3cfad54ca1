package fake

import (
	"fmt"
	"sync"

	"github.com/oscore/mipskernel/internal/machine"
)

// FileSystem is an in-memory stand-in for the backing file-system
// device. File operations are not semantically rich — §1 explicitly
// excludes real filesystem semantics — it only stores named byte
// buffers.
type FileSystem struct {
	mu    sync.Mutex
	files map[string][]byte
}

func NewFileSystem() *FileSystem {
	return &FileSystem{files: make(map[string][]byte)}
}

// Open returns a positioned OpenFile backed by the named buffer. If the
// file doesn't exist and createIfMissing is false, returns an error;
// note the FD table (§4.8) maps an error here to -1.
func (fs *FileSystem) Open(name string, createIfMissing bool) (machine.OpenFile, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	buf, ok := fs.files[name]
	if !ok {
		if !createIfMissing {
			return nil, fmt.Errorf("fake: no such file %q", name)
		}
		buf = nil
		fs.files[name] = buf
	}
	return &File{fs: fs, name: name, data: buf}, nil
}

// Remove deletes the named file, reporting whether it existed.
func (fs *FileSystem) Remove(name string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.files[name]; !ok {
		return false
	}
	delete(fs.files, name)
	return true
}

// Contents returns a copy of the named file's current bytes, for
// assertions in tests.
func (fs *FileSystem) Contents(name string) ([]byte, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	buf, ok := fs.files[name]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, true
}

func (fs *FileSystem) commit(name string, data []byte) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.files[name] = data
}

// File is a positioned handle onto one of FileSystem's in-memory
// buffers.
type File struct {
	fs     *FileSystem
	name   string
	data   []byte
	pos    int
	closed bool
}

func (f *File) Read(buf []byte) (int, error) {
	return f.ReadAt(buf, f.pos)
}

func (f *File) ReadAt(buf []byte, pos int) (int, error) {
	if pos >= len(f.data) {
		return 0, nil
	}
	n := copy(buf, f.data[pos:])
	f.pos = pos + n
	return n, nil
}

func (f *File) Write(buf []byte) (int, error) {
	return f.WriteAt(buf, f.pos)
}

func (f *File) WriteAt(buf []byte, pos int) (int, error) {
	need := pos + len(buf)
	if need > len(f.data) {
		grown := make([]byte, need)
		copy(grown, f.data)
		f.data = grown
	}
	n := copy(f.data[pos:], buf)
	f.pos = pos + n
	f.fs.commit(f.name, f.data)
	return n, nil
}

func (f *File) Close() error {
	f.closed = true
	return nil
}
