package machine

import "sync"

// SynchConsole wraps a raw Console so that concurrent reads and writes
// from different processes don't interleave at the byte level.
// UserKernel.java wires a SynchConsole, not the raw console device,
// to fd 0/1 — this is that wrapper (§C).
type SynchConsole struct {
	console Console

	readMu  sync.Mutex
	writeMu sync.Mutex

	reader OpenFile
	writer OpenFile
}

// NewSynchConsole wraps console, opening its read and write ends once.
func NewSynchConsole(console Console) *SynchConsole {
	return &SynchConsole{
		console: console,
		reader:  console.OpenForReading(),
		writer:  console.OpenForWriting(),
	}
}

// OpenForReading returns a serialized read-only handle onto the console.
func (s *SynchConsole) OpenForReading() OpenFile {
	return &synchOpenFile{mu: &s.readMu, inner: s.reader}
}

// OpenForWriting returns a serialized write-only handle onto the
// console.
func (s *SynchConsole) OpenForWriting() OpenFile {
	return &synchOpenFile{mu: &s.writeMu, inner: s.writer}
}

type synchOpenFile struct {
	mu    *sync.Mutex
	inner OpenFile
}

func (f *synchOpenFile) Read(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inner.Read(buf)
}

func (f *synchOpenFile) Write(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inner.Write(buf)
}

func (f *synchOpenFile) ReadAt(buf []byte, pos int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inner.ReadAt(buf, pos)
}

func (f *synchOpenFile) WriteAt(buf []byte, pos int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inner.WriteAt(buf, pos)
}

func (f *synchOpenFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inner.Close()
}
