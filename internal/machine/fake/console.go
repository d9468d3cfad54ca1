package fake

import (
	"bytes"
	"io"
	"sync"

	"github.com/oscore/mipskernel/internal/machine"
)

// Console is an in-memory stand-in for the console device: Stdin feeds
// reads, Stdout accumulates writes. The backing files have no position,
// matching §3's "the keyboard/console backing has no position".
type Console struct {
	stdin  *consoleFile
	stdout *consoleFile
}

// NewConsole builds a console whose reads are drawn from input.
func NewConsole(input []byte) *Console {
	return &Console{
		stdin:  &consoleFile{buf: bytes.NewBuffer(input)},
		stdout: &consoleFile{buf: &bytes.Buffer{}},
	}
}

func (c *Console) OpenForReading() machine.OpenFile { return c.stdin }
func (c *Console) OpenForWriting() machine.OpenFile { return c.stdout }

// Written returns everything written to stdout so far, for assertions.
func (c *Console) Written() []byte {
	c.stdout.mu.Lock()
	defer c.stdout.mu.Unlock()
	return append([]byte(nil), c.stdout.buf.Bytes()...)
}

type consoleFile struct {
	mu  sync.Mutex
	buf *bytes.Buffer
}

func (f *consoleFile) Read(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.buf.Read(buf)
	if err == io.EOF {
		return n, nil
	}
	return n, err
}

func (f *consoleFile) Write(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buf.Write(buf)
}

func (f *consoleFile) ReadAt(buf []byte, pos int) (int, error) { return f.Read(buf) }

func (f *consoleFile) WriteAt(buf []byte, pos int) (int, error) { return f.Write(buf) }

func (f *consoleFile) Close() error { return nil }
