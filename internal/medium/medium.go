// Package medium defines the filesystem driver the recording store talks to
// and a go-billy backed implementation of it.
package medium

import (
	"io"
)

// Mode selects how a file is opened
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	default:
		return "unknown"
	}
}

// Entry is a single directory child as reported by the medium.
// Name is the full path of the child, e.g. "/recordings/00001.rec".
type Entry struct {
	Name  string
	Size  int64
	IsDir bool
}

// Dir iterates the direct children of an opened directory
type Dir interface {
	// Next returns the next child, or false once the directory is exhausted
	Next() (Entry, bool)
	Close() error
}

// File is an open file on the medium. Peek returns the next byte without
// consuming it and io.EOF at the end of the file.
type File interface {
	io.Reader
	io.Writer
	io.ByteReader
	Peek() (byte, error)
	Close() error
}

// Driver is the set of primitives the store needs from the medium.
// Implementations are not required to be safe for concurrent use; callers
// serialize access with the bus lock.
type Driver interface {
	Mount() error
	Exists(path string) bool
	Mkdir(path string) error
	Remove(path string) error
	OpenDir(path string) (Dir, error)
	OpenFile(path string, mode Mode) (File, error)
}
