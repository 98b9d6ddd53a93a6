package storage

import (
	"errors"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/audiolibrelab/recstore/internal/medium"
)

var errInjected = errors.New("injected medium failure")

// faultyDriver wraps an in-memory driver and fails selected primitives
type faultyDriver struct {
	*medium.BillyDriver

	failMount    bool
	failMkdir    bool
	failOpenDir  bool
	failCreate   bool
	failOpenRead bool
	failRemove   bool
	failWrite    bool
	shortWrite   bool
	failRead     bool

	// occupied reports extra paths as existing without creating them
	occupied func(path string) bool
	// entries replaces the directory listing when set
	entries []medium.Entry
}

func newFaultyDriver() *faultyDriver {
	return &faultyDriver{BillyDriver: medium.NewMemory()}
}

func (d *faultyDriver) Mount() error {
	if d.failMount {
		return errInjected
	}
	return d.BillyDriver.Mount()
}

func (d *faultyDriver) Mkdir(path string) error {
	if d.failMkdir {
		return errInjected
	}
	return d.BillyDriver.Mkdir(path)
}

func (d *faultyDriver) Exists(path string) bool {
	if d.occupied != nil && d.occupied(path) {
		return true
	}
	return d.BillyDriver.Exists(path)
}

func (d *faultyDriver) Remove(path string) error {
	if d.failRemove {
		return errInjected
	}
	return d.BillyDriver.Remove(path)
}

func (d *faultyDriver) OpenDir(path string) (medium.Dir, error) {
	if d.failOpenDir {
		return nil, errInjected
	}
	if d.entries != nil {
		return &entryDir{entries: d.entries}, nil
	}
	return d.BillyDriver.OpenDir(path)
}

func (d *faultyDriver) OpenFile(path string, mode medium.Mode) (medium.File, error) {
	if mode == medium.ModeWrite && d.failCreate {
		return nil, errInjected
	}
	if mode == medium.ModeRead && d.failOpenRead {
		return nil, errInjected
	}
	f, err := d.BillyDriver.OpenFile(path, mode)
	if err != nil {
		return nil, err
	}
	return &faultyFile{File: f, d: d}, nil
}

type faultyFile struct {
	medium.File
	d      *faultyDriver
	closed bool
}

func (f *faultyFile) Write(p []byte) (int, error) {
	if f.d.failWrite {
		return 0, errInjected
	}
	if f.d.shortWrite && len(p) > 1 {
		n, _ := f.File.Write(p[:len(p)-1])
		return n, nil
	}
	return f.File.Write(p)
}

func (f *faultyFile) Read(p []byte) (int, error) {
	if f.d.failRead {
		return 0, errInjected
	}
	return f.File.Read(p)
}

func (f *faultyFile) Close() error {
	if f.closed {
		return fs.ErrClosed
	}
	f.closed = true
	return f.File.Close()
}

type entryDir struct {
	entries []medium.Entry
	pos     int
}

func (d *entryDir) Next() (medium.Entry, bool) {
	if d.pos >= len(d.entries) {
		return medium.Entry{}, false
	}
	e := d.entries[d.pos]
	d.pos++
	return e, true
}

func (d *entryDir) Close() error { return nil }

// busLock counts acquisitions and detects unbalanced use. Tests drive the
// store from a single goroutine, so no real exclusion is needed.
type busLock struct {
	held  bool
	locks int
	t     *testing.T
}

func (b *busLock) Lock() {
	if b.held {
		b.t.Error("bus lock acquired while already held")
	}
	b.held = true
	b.locks++
}

func (b *busLock) Unlock() {
	if !b.held {
		b.t.Error("bus lock released while not held")
	}
	b.held = false
}

func (b *busLock) assertReleased(t *testing.T) {
	t.Helper()
	if b.held {
		t.Error("bus lock still held after operation")
	}
}

// logBuffer collects diagnostics emitted by the store
type logBuffer struct {
	mu sync.Mutex
	sb strings.Builder
}

func (l *logBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sb.Write(p)
}

func (l *logBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sb.String()
}

func newTestStore(t *testing.T, d medium.Driver) (*Store, *busLock, *logBuffer) {
	t.Helper()
	bus := &busLock{t: t}
	logs := &logBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(d, bus, WithLogger(logger)), bus, logs
}
