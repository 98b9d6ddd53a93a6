package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/audiolibrelab/recstore/internal/acquire"
	"github.com/audiolibrelab/recstore/internal/config"
	"github.com/audiolibrelab/recstore/internal/medium"
	"github.com/audiolibrelab/recstore/internal/offload"
	"github.com/audiolibrelab/recstore/internal/play"
	"github.com/audiolibrelab/recstore/internal/storage"
	"github.com/dustin/go-humanize"
)

var (
	// ErrNotRecording is returned by StopRecording when no session is running
	ErrNotRecording = errors.New("no recording in progress")

	// ErrRecordingActive is returned when a session is already running
	ErrRecordingActive = errors.New("recording already in progress")
)

// Service represents the core recstore service interface
type Service interface {
	// Recording operations
	StartRecording(src acquire.Source, interval time.Duration) (*RecordingSession, error)
	StopRecording() (*RecordingSession, error)
	Record(ctx context.Context, src acquire.Source, interval time.Duration) (*RecordingSession, error)

	// Recording management
	ListRecordings() ([]RecordingInfo, error)
	RemoveRecording(name string) error
	Play(name string, w io.Writer, format play.Format) (int, error)
	Offload(ctx context.Context, name string) (*offload.Result, error)
	OffloadAll(ctx context.Context) ([]offload.Result, error)

	// Status operations
	GetStatus() Status
	ClearError() error
	GetLastError() string
	GetConfig() *config.Config

	Close() error
}

// Uploader copies an open recording to remote storage
type Uploader interface {
	Upload(ctx context.Context, name string, r offload.RecordReader) (*offload.Result, error)
}

// RecordingSession contains information about a recording session
type RecordingSession struct {
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time,omitzero"`
	Records   int       `json:"records"`
	Error     string    `json:"error,omitempty"`

	err error
}

// RecordingInfo contains information about a recording on the medium
type RecordingInfo struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	SizeHuman   string `json:"size_human"`
	DownloadURL string `json:"download_url"`
}

// Status is a snapshot of the store and the recording session
type Status struct {
	State            string            `json:"state"`
	ErrorCode        string            `json:"error_code"`
	NextIndex        int               `json:"next_index"`
	CurrentRecording string            `json:"current_recording,omitempty"`
	Session          *RecordingSession `json:"session,omitempty"`
	LastSession      *RecordingSession `json:"last_session,omitempty"`
	Message          string            `json:"message,omitempty"`
}

var _ Service = (*RecStoreService)(nil)

// Option configures a RecStoreService
type Option func(*RecStoreService)

// WithDriver replaces the driver selected by the medium configuration
func WithDriver(d medium.Driver) Option {
	return func(s *RecStoreService) { s.driver = d }
}

// WithBus sets the lock shared with other users of the peripheral bus
func WithBus(bus sync.Locker) Option {
	return func(s *RecStoreService) { s.bus = bus }
}

// WithUploader replaces the S3 uploader built from the offload configuration
func WithUploader(u Uploader) Option {
	return func(s *RecStoreService) { s.uploader = u }
}

// RecStoreService is the main service implementation. It serializes every
// store operation, so it is safe for concurrent use.
type RecStoreService struct {
	cfg      *config.Config
	driver   medium.Driver
	bus      sync.Locker
	uploader Uploader

	mu          sync.Mutex
	store       *storage.Store
	session     *RecordingSession
	lastSession *RecordingSession
	stopChan    chan struct{}
	doneChan    chan struct{}

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New creates a new recstore service instance. A medium that fails to
// initialize leaves the store in its error state; ClearError retries.
func New(cfg *config.Config, opts ...Option) (*RecStoreService, error) {
	s := &RecStoreService{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}

	if s.driver == nil {
		d, err := medium.Open(cfg.Medium)
		if err != nil {
			return nil, fmt.Errorf("failed to open medium: %w", err)
		}
		s.driver = d
	}
	if s.bus == nil {
		s.bus = &sync.Mutex{}
	}

	s.store = storage.New(s.driver, s.bus, storage.WithLogger(slog.Default().With("component", "storage")))
	if code := s.store.LastError(); code != storage.CodeNone {
		s.setLastError(fmt.Sprintf("Medium initialization failed: %s", code))
	}

	return s, nil
}

// StartRecording creates a new recording and starts writing records from src
// in the background. A positive interval paces the writes.
func (s *RecStoreService) StartRecording(src acquire.Source, interval time.Duration) (*RecordingSession, error) {
	session, _, err := s.startRecording(src, interval)
	return session, err
}

func (s *RecStoreService) startRecording(src acquire.Source, interval time.Duration) (*RecordingSession, chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		return nil, nil, ErrRecordingActive
	}

	name, err := s.store.CreateRecording()
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to create recording: %v", err))
		return nil, nil, err
	}
	s.clearLastError()

	s.session = &RecordingSession{Name: name, StartTime: time.Now()}
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})

	slog.Info("Recording started", "name", name, "interval", interval)
	go s.recordingWorker(src, interval, s.stopChan, s.doneChan)

	snapshot := *s.session
	return &snapshot, s.doneChan, nil
}

// nextRecord is one result of Source.Next
type nextRecord struct {
	values []float32
	err    error
}

// readSource feeds src into records until Next fails or quit is closed
func readSource(src acquire.Source, records chan<- nextRecord, quit <-chan struct{}) {
	for {
		values, err := src.Next()
		select {
		case records <- nextRecord{values: values, err: err}:
		case <-quit:
			return
		}
		if err != nil {
			return
		}
	}
}

// recordingWorker pumps records from the source into the store until the
// source ends, a write fails or the session is stopped. Reads happen on a
// separate goroutine, so a stop takes effect while Next is blocked; the
// source is closed once the recording is.
func (s *RecStoreService) recordingWorker(src acquire.Source, interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	records := make(chan nextRecord)
	quit := make(chan struct{})
	go readSource(src, records, quit)
	defer func() {
		close(quit)
		if err := src.Close(); err != nil {
			slog.Warn("Failed to close record source", "error", err)
		}
	}()

	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if tick != nil {
			select {
			case <-stop:
				s.finishRecording(nil)
				return
			case <-tick:
			}
		}

		var next nextRecord
		select {
		case <-stop:
			s.finishRecording(nil)
			return
		case next = <-records:
		}

		if errors.Is(next.err, io.EOF) {
			s.finishRecording(nil)
			return
		}
		if next.err != nil {
			s.finishRecording(fmt.Errorf("source failed: %w", next.err))
			return
		}

		s.mu.Lock()
		err := s.store.WriteRecord(next.values)
		if err == nil {
			s.session.Records++
		}
		s.mu.Unlock()

		if err != nil {
			s.finishRecording(err)
			return
		}
	}
}

func (s *RecStoreService) finishRecording(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store.State() == storage.StateRecording {
		if err := s.store.CloseRecording(); err != nil && cause == nil {
			cause = err
		}
	}

	session := s.session
	session.EndTime = time.Now()
	if cause != nil {
		session.Error = cause.Error()
		session.err = cause
		s.setLastError(fmt.Sprintf("Recording %s failed: %v", session.Name, cause))
	}

	slog.Info("Recording finished", "name", session.Name, "records", session.Records,
		"duration", session.EndTime.Sub(session.StartTime))

	s.lastSession = session
	s.session = nil
	s.stopChan = nil
	s.doneChan = nil
}

// StopRecording stops the running session and waits for the recording to be
// closed. It does not wait for a Next call blocked in the source.
func (s *RecStoreService) StopRecording() (*RecordingSession, error) {
	s.mu.Lock()
	stop, done := s.stopChan, s.doneChan
	s.stopChan = nil
	s.mu.Unlock()

	if stop == nil {
		return nil, ErrNotRecording
	}

	close(stop)
	<-done

	return s.lastSessionSnapshot(), nil
}

// Record runs a recording session in the foreground until the source ends or
// ctx is cancelled
func (s *RecStoreService) Record(ctx context.Context, src acquire.Source, interval time.Duration) (*RecordingSession, error) {
	_, done, err := s.startRecording(src, interval)
	if err != nil {
		return nil, err
	}

	select {
	case <-done:
	case <-ctx.Done():
		if _, err := s.StopRecording(); err != nil && !errors.Is(err, ErrNotRecording) {
			return nil, err
		}
		<-done
	}

	session := s.lastSessionSnapshot()
	return session, session.err
}

func (s *RecStoreService) lastSessionSnapshot() *RecordingSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastSession == nil {
		return nil
	}
	snapshot := *s.lastSession
	return &snapshot
}

// ListRecordings returns the recordings on the medium
func (s *RecStoreService) ListRecordings() ([]RecordingInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.store.ListRecordings()
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to list recordings: %v", err))
		return nil, err
	}

	recordings := make([]RecordingInfo, 0, len(entries))
	for _, e := range entries {
		recordings = append(recordings, RecordingInfo{
			Name:        e.Name,
			Size:        e.Size,
			SizeHuman:   humanize.Bytes(uint64(e.Size)),
			DownloadURL: fmt.Sprintf("/api/recordings/%s", e.Name),
		})
	}
	return recordings, nil
}

// RemoveRecording deletes a recording from the medium
func (s *RecStoreService) RemoveRecording(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.RemoveRecording(name); err != nil {
		s.setLastError(fmt.Sprintf("Failed to remove recording %s: %v", name, err))
		return err
	}
	return nil
}

// Play writes every record of a recording to w and returns the number of
// records written
func (s *RecStoreService) Play(name string, w io.Writer, format play.Format) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.OpenRecording(name); err != nil {
		return 0, err
	}

	n, err := play.New(w, format).Play(s.store)
	if s.store.State() == storage.StateReading {
		if cerr := s.store.CloseRecording(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		s.setLastError(fmt.Sprintf("Playback of %s failed: %v", name, err))
		return n, err
	}

	slog.Debug("Playback completed", "name", name, "records", n)
	return n, nil
}

// Offload uploads one recording and, when configured, removes it afterwards
func (s *RecStoreService) Offload(ctx context.Context, name string) (*offload.Result, error) {
	uploader, err := s.getUploader(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.offloadLocked(ctx, uploader, name)
}

// OffloadAll uploads every recording on the medium. It stops at the first
// failure and returns the recordings uploaded so far.
func (s *RecStoreService) OffloadAll(ctx context.Context) ([]offload.Result, error) {
	uploader, err := s.getUploader(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.store.ListRecordings()
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to list recordings: %v", err))
		return nil, err
	}

	results := []offload.Result{}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := s.offloadLocked(ctx, uploader, e.Name)
		if err != nil {
			return results, err
		}
		results = append(results, *res)
	}
	return results, nil
}

func (s *RecStoreService) offloadLocked(ctx context.Context, uploader Uploader, name string) (*offload.Result, error) {
	if err := s.store.OpenRecording(name); err != nil {
		return nil, err
	}

	res, err := uploader.Upload(ctx, name, s.store)
	if s.store.State() == storage.StateReading {
		if cerr := s.store.CloseRecording(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		s.setLastError(fmt.Sprintf("Offload of %s failed: %v", name, err))
		return nil, err
	}

	slog.Info("Recording offloaded", "name", name, "key", res.Key, "records", res.Records,
		"size", humanize.Bytes(uint64(res.Bytes)))

	if s.cfg.Offload.RemoveAfterUpload {
		if err := s.store.RemoveRecording(name); err != nil {
			s.setLastError(fmt.Sprintf("Failed to remove offloaded recording %s: %v", name, err))
			return res, err
		}
	}
	return res, nil
}

func (s *RecStoreService) getUploader(ctx context.Context) (Uploader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.uploader != nil {
		return s.uploader, nil
	}

	u, err := offload.New(ctx, s.cfg.Offload)
	if err != nil {
		return nil, fmt.Errorf("failed to create uploader: %w", err)
	}
	s.uploader = u
	return u, nil
}

// GetStatus returns the current store state and session info
func (s *RecStoreService) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		State:            s.store.State().String(),
		ErrorCode:        s.store.LastError().String(),
		NextIndex:        s.store.NextIndex(),
		CurrentRecording: s.store.CurrentRecording(),
		Message:          s.GetLastError(),
	}
	if s.session != nil {
		snapshot := *s.session
		status.Session = &snapshot
	}
	if s.lastSession != nil {
		snapshot := *s.lastSession
		status.LastSession = &snapshot
	}
	return status
}

// ClearError re-initializes the medium after a failure
func (s *RecStoreService) ClearError() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.ClearError(); err != nil {
		s.setLastError(fmt.Sprintf("Failed to clear error: %v", err))
		return err
	}
	s.clearLastError()
	return nil
}

// GetConfig returns the current configuration
func (s *RecStoreService) GetConfig() *config.Config {
	return s.cfg
}

// Close stops a running session and releases the store
func (s *RecStoreService) Close() error {
	if _, err := s.StopRecording(); err != nil && !errors.Is(err, ErrNotRecording) {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Close()
}

// GetLastError returns the last error message (thread-safe)
func (s *RecStoreService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

// setLastError sets the last error message (thread-safe)
func (s *RecStoreService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err

	slog.Error("Service error occurred", "error_message", err)
}

// clearLastError clears the last error message (thread-safe)
func (s *RecStoreService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}
