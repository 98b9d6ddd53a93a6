// Package storage implements the recording store: a state machine that owns
// the removable medium, hands out sequentially numbered recordings and turns
// medium failures into a sticky error state.
//
// A Store is not safe for concurrent use. Every medium access holds the bus
// lock, which is shared with the other peripherals on the same bus.
package storage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/audiolibrelab/recstore/internal/medium"
)

const (
	// RecordingsDir is the directory holding every recording on the medium
	RecordingsDir = "/recordings"

	// Extension is the file extension of a recording
	Extension = ".rec"

	// MaxRecordings bounds the name scan; names run from 00000 to 09999
	MaxRecordings = 10000
)

// Entry describes one recording found on the medium
type Entry struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger diagnostics are written to
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.log = logger
		}
	}
}

// Store mediates all access to the recordings on the medium.
type Store struct {
	driver medium.Driver
	bus    sync.Locker
	log    *slog.Logger

	state     State
	code      ErrorCode
	file      medium.File
	name      string
	nextIndex int
}

// New creates a store and initializes the medium. A failed initialization is
// logged and leaves the store in StateError; ClearError retries it.
func New(driver medium.Driver, bus sync.Locker, opts ...Option) *Store {
	s := &Store{
		driver: driver,
		bus:    bus,
		log:    slog.Default(),
		state:  StateError,
		code:   CodeCanNotInitialize,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.Initialize(); err != nil {
		s.log.Error("First init failed", "error", err)
	}

	return s
}

// RecordingPath returns the medium path of the named recording
func RecordingPath(name string) string {
	return RecordingsDir + "/" + name + Extension
}

// RecordingName formats a scan index as a recording name
func RecordingName(index int) string {
	return fmt.Sprintf("%05d", index)
}

// Initialize mounts the medium and makes sure the recordings directory
// exists. It moves the store to StateIdle on success and to StateError on
// failure.
func (s *Store) Initialize() error {
	if s.IsRecordingOpen() {
		return s.stateError("initialize", StateIdle, StateError)
	}

	s.bus.Lock()
	defer s.bus.Unlock()

	if err := s.driver.Mount(); err != nil {
		return s.setError(CodeCanNotInitialize, "mount", "", err)
	}

	if !s.driver.Exists(RecordingsDir) {
		if err := s.driver.Mkdir(RecordingsDir); err != nil {
			return s.setError(CodeFileSystemError, "mkdir", RecordingsDir, err)
		}
	}

	s.state = StateIdle
	s.code = CodeNone
	return nil
}

// ClearError re-initializes the medium when the store is in StateError.
// Outside StateError it does nothing.
func (s *Store) ClearError() error {
	if s.state != StateError {
		s.log.Debug("clear error: store not in error state", "state", s.state)
		return nil
	}

	if err := s.Initialize(); err != nil {
		s.log.Error("Clear error failed", "error", err)
		return err
	}
	return nil
}

// LastError returns the sticky error code
func (s *Store) LastError() ErrorCode {
	return s.code
}

// State returns the current state
func (s *Store) State() State {
	return s.state
}

// NextIndex returns the index the next name scan starts from
func (s *Store) NextIndex() int {
	return s.nextIndex
}

// CurrentRecording returns the name of the recording being written, if any
func (s *Store) CurrentRecording() string {
	return s.name
}

// IsRecordingOpen reports whether a recording is open for writing or reading
func (s *Store) IsRecordingOpen() bool {
	return s.state == StateRecording || s.state == StateReading
}

// ListRecordings returns every recording in the recordings directory, in
// the order the medium reports them.
func (s *Store) ListRecordings() ([]Entry, error) {
	if err := s.checkState("list recordings", StateIdle); err != nil {
		return nil, err
	}

	s.bus.Lock()
	defer s.bus.Unlock()

	dir, err := s.driver.OpenDir(RecordingsDir)
	if err != nil {
		return nil, s.setError(CodeCanNotOpenFile, "open dir", RecordingsDir, err)
	}
	defer dir.Close()

	recordings := []Entry{}
	for entry, ok := dir.Next(); ok; entry, ok = dir.Next() {
		if entry.IsDir {
			continue
		}

		s.log.Debug("checking entry", "path", entry.Name)
		name := strings.TrimPrefix(entry.Name, RecordingsDir+"/")
		if len(name) < len(Extension) || !strings.EqualFold(name[len(name)-len(Extension):], Extension) {
			continue
		}

		name = name[:len(name)-len(Extension)]
		s.log.Debug("found recording", "name", name)
		recordings = append(recordings, Entry{Name: name, Size: entry.Size})
	}

	return recordings, nil
}

// RemoveRecording deletes the named recording. A missing recording returns
// ErrNoSuchRecording without affecting the state.
func (s *Store) RemoveRecording(name string) error {
	if err := s.checkState("remove recording", StateIdle); err != nil {
		return err
	}

	s.bus.Lock()
	defer s.bus.Unlock()

	path := RecordingPath(name)
	if !s.driver.Exists(path) {
		s.log.Error("no such recording", "path", path)
		return fmt.Errorf("storage: remove %s: %w", path, ErrNoSuchRecording)
	}

	if err := s.driver.Remove(path); err != nil {
		return s.setError(CodeCanNotRemoveFile, "remove", path, err)
	}

	s.log.Info("removed recording", "name", name)
	return nil
}

// CreateRecording opens a new recording for writing and returns its name.
// Names are taken from the first free index at or after NextIndex; indices
// below the cursor are not reused. When no name is free the store stays Idle
// and LastError stays CodeNone; use CodeOf(err) to see CodeTooManyFiles.
func (s *Store) CreateRecording() (string, error) {
	if err := s.checkState("create recording", StateIdle); err != nil {
		return "", err
	}

	s.bus.Lock()
	defer s.bus.Unlock()

	name, path := "", ""
	for i := s.nextIndex; i < MaxRecordings; i++ {
		candidate := RecordingName(i)
		candidatePath := RecordingPath(candidate)
		s.log.Debug("checking file path", "path", candidatePath)

		if !s.driver.Exists(candidatePath) {
			name, path = candidate, candidatePath
			break
		}
	}

	if name == "" {
		s.log.Error("can not find free filename", "from", RecordingName(s.nextIndex), "code", CodeTooManyFiles)
		return "", &MediumError{Code: CodeTooManyFiles, Op: "create", Path: RecordingsDir, Err: ErrTooManyFiles}
	}

	s.log.Info("opening", "path", path)
	f, err := s.driver.OpenFile(path, medium.ModeWrite)
	if err != nil {
		return "", s.setError(CodeCanNotOpenFile, "create", path, err)
	}

	s.file = f
	s.name = name
	s.state = StateRecording

	s.log.Info("created new recording", "name", name)
	return name, nil
}

// WriteRecord appends one record to the recording being written.
func (s *Store) WriteRecord(values []float32) error {
	if err := s.checkState("write record", StateRecording); err != nil {
		return err
	}

	if len(values) == 0 {
		s.log.Error("no data to write")
		return ErrEmptyRecord
	}

	data, err := EncodeRecord(values)
	if err != nil {
		s.log.Error("record too long", "length", len(values), "max", MaxRecordLen)
		return err
	}

	s.bus.Lock()
	defer s.bus.Unlock()

	n, err := s.file.Write(data)
	if err == nil && n != len(data) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return s.setError(CodeFileSystemError, "write", RecordingPath(s.name), err)
	}

	return nil
}

// OpenRecording opens the named recording for reading. Neither a missing
// recording nor a failed open moves the store to StateError.
func (s *Store) OpenRecording(name string) error {
	if err := s.checkState("open recording", StateIdle); err != nil {
		return err
	}

	s.bus.Lock()
	defer s.bus.Unlock()

	path := RecordingPath(name)
	if !s.driver.Exists(path) {
		s.log.Error("no such recording", "path", path)
		return fmt.Errorf("storage: open %s: %w", path, ErrNoSuchRecording)
	}

	f, err := s.driver.OpenFile(path, medium.ModeRead)
	if err != nil {
		s.log.Error("can not open recording", "path", path, "error", err)
		return &MediumError{Code: CodeCanNotOpenFile, Op: "open", Path: path, Err: err}
	}

	s.file = f
	s.state = StateReading
	return nil
}

// ReadRecord reads the next record of the open recording into buf and
// returns the number of values read.
//
// At the end of the recording it returns io.EOF. When the next record holds
// len(buf) values or more it returns a *ShortBufferError and leaves the
// record unread. A medium failure moves the store to StateError.
func (s *Store) ReadRecord(buf []float32) (int, error) {
	if err := s.checkState("read record", StateReading); err != nil {
		return 0, err
	}

	s.bus.Lock()
	defer s.bus.Unlock()

	length, err := s.file.Peek()
	if errors.Is(err, io.EOF) {
		return 0, io.EOF
	}
	if err != nil {
		return 0, s.setError(CodeFileSystemError, "read", "", err)
	}

	n := int(length)
	if n >= len(buf) {
		s.log.Warn("not enough space for reading", "space", len(buf), "needed", n)
		return 0, &ShortBufferError{Need: n, Have: len(buf)}
	}

	if _, err := s.file.ReadByte(); err != nil {
		return 0, s.setError(CodeFileSystemError, "read", "", err)
	}

	payload := make([]byte, n*valueSize)
	if _, err := io.ReadFull(s.file, payload); err != nil {
		return 0, s.setError(CodeFileSystemError, "read", "", err)
	}

	getValues(buf[:n], payload)
	return n, nil
}

// CloseRecording closes the open recording and returns to StateIdle.
// Closing a recording that was being written advances NextIndex.
func (s *Store) CloseRecording() error {
	switch s.state {
	case StateRecording:
		s.log.Debug("stopping recording", "name", s.name)
		s.closeFile()
		s.state = StateIdle
		s.nextIndex++
		s.name = ""
		return nil
	case StateReading:
		s.log.Debug("stopping reading")
		s.closeFile()
		s.state = StateIdle
		return nil
	default:
		return s.stateError("close recording", StateRecording, StateReading)
	}
}

// Close releases an open recording, if any.
func (s *Store) Close() error {
	if !s.IsRecordingOpen() {
		return nil
	}
	return s.CloseRecording()
}

func (s *Store) closeFile() {
	s.bus.Lock()
	defer s.bus.Unlock()

	if err := s.file.Close(); err != nil {
		s.log.Warn("closing recording file failed", "error", err)
	}
	s.file = nil
}

func (s *Store) checkState(op string, expected State) error {
	if s.state != expected {
		return s.stateError(op, expected)
	}
	return nil
}

func (s *Store) stateError(op string, expected ...State) error {
	err := &WrongStateError{Op: op, Expected: expected, Actual: s.state}
	s.log.Error("ERROR: wrong state", "op", op, "expected", expectedNames(expected), "state", s.state)
	return err
}

// setError records a sticky medium error and returns it
func (s *Store) setError(code ErrorCode, op, path string, cause error) error {
	err := &MediumError{Code: code, Op: op, Path: path, Err: cause}
	s.log.Error(code.String(), "op", op, "path", path, "error", cause)

	// a failed medium leaves no usable handle behind
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
		s.name = ""
	}

	s.state = StateError
	s.code = code
	return err
}

func expectedNames(states []State) string {
	names := make([]string, len(states))
	for i, st := range states {
		names[i] = st.String()
	}
	return strings.Join(names, "|")
}
