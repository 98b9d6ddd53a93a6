package medium

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/audiolibrelab/recstore/internal/config"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
)

// BackendType represents the kind of filesystem backing a medium
type BackendType string

const (
	BackendTypeLocal  BackendType = "local"
	BackendTypeMemory BackendType = "memory"
)

var errNotReadable = errors.New("file not opened for reading")
var errNotWritable = errors.New("file not opened for writing")

// BillyDriver implements Driver on top of a billy.Filesystem.
type BillyDriver struct {
	bfs   billy.Filesystem
	mount func() error
}

// NewLocal creates a driver for a card mounted at root on the host. Mount
// fails while root is missing, which is how an absent card shows up.
func NewLocal(root string) *BillyDriver {
	return &BillyDriver{
		bfs: osfs.New(root),
		mount: func() error {
			info, err := os.Stat(root)
			if err != nil {
				return fmt.Errorf("medium root %s: %w", root, err)
			}
			if !info.IsDir() {
				return fmt.Errorf("medium root %s is not a directory", root)
			}
			return nil
		},
	}
}

// NewMemory creates a driver backed by an empty in-memory filesystem.
func NewMemory() *BillyDriver {
	return NewBilly(memfs.New())
}

// NewBilly wraps an existing billy.Filesystem. Mount always succeeds.
func NewBilly(bfs billy.Filesystem) *BillyDriver {
	return &BillyDriver{
		bfs:   bfs,
		mount: func() error { return nil },
	}
}

// Open creates the driver selected by the medium configuration
func Open(cfg config.MediumConfig) (*BillyDriver, error) {
	switch BackendType(strings.ToLower(cfg.Backend)) {
	case BackendTypeLocal, "":
		if cfg.Root == "" {
			return nil, fmt.Errorf("medium root is required for the local backend")
		}
		return NewLocal(cfg.Root), nil
	case BackendTypeMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown medium backend: %s", cfg.Backend)
	}
}

// Unwrap returns the underlying billy.Filesystem.
func (d *BillyDriver) Unwrap() billy.Filesystem {
	return d.bfs
}

func (d *BillyDriver) Mount() error {
	return d.mount()
}

func (d *BillyDriver) Exists(name string) bool {
	_, err := d.bfs.Stat(name)
	return err == nil
}

func (d *BillyDriver) Mkdir(name string) error {
	return d.bfs.MkdirAll(name, 0o755)
}

func (d *BillyDriver) Remove(name string) error {
	return d.bfs.Remove(name)
}

func (d *BillyDriver) OpenDir(name string) (Dir, error) {
	info, err := d.bfs.Stat(name)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", name)
	}

	infos, err := d.bfs.ReadDir(name)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(infos))
	for _, fi := range infos {
		entries = append(entries, Entry{
			Name:  path.Join(name, fi.Name()),
			Size:  fi.Size(),
			IsDir: fi.IsDir(),
		})
	}
	return &sliceDir{entries: entries}, nil
}

func (d *BillyDriver) OpenFile(name string, mode Mode) (File, error) {
	switch mode {
	case ModeRead:
		f, err := d.bfs.Open(name)
		if err != nil {
			return nil, err
		}
		return &billyFile{f: f, r: bufio.NewReader(f)}, nil
	case ModeWrite:
		f, err := d.bfs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		return &billyFile{f: f, writable: true}, nil
	default:
		return nil, fmt.Errorf("unsupported open mode: %s", mode)
	}
}

// sliceDir serves directory children from a snapshot taken at open time
type sliceDir struct {
	entries []Entry
	pos     int
}

func (d *sliceDir) Next() (Entry, bool) {
	if d.pos >= len(d.entries) {
		return Entry{}, false
	}
	e := d.entries[d.pos]
	d.pos++
	return e, true
}

func (d *sliceDir) Close() error {
	d.entries = nil
	return nil
}

type billyFile struct {
	f        billy.File
	r        *bufio.Reader
	writable bool
}

func (f *billyFile) Read(p []byte) (int, error) {
	if f.r == nil {
		return 0, errNotReadable
	}
	return f.r.Read(p)
}

func (f *billyFile) ReadByte() (byte, error) {
	if f.r == nil {
		return 0, errNotReadable
	}
	return f.r.ReadByte()
}

func (f *billyFile) Peek() (byte, error) {
	if f.r == nil {
		return 0, errNotReadable
	}
	b, err := f.r.Peek(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (f *billyFile) Write(p []byte) (int, error) {
	if !f.writable {
		return 0, errNotWritable
	}
	n, err := f.f.Write(p)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	return n, err
}

func (f *billyFile) Close() error {
	return f.f.Close()
}
