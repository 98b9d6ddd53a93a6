package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/audiolibrelab/recstore/internal/acquire"
	"github.com/audiolibrelab/recstore/internal/offload"
	"github.com/audiolibrelab/recstore/internal/play"
	"github.com/audiolibrelab/recstore/internal/service"
	"github.com/audiolibrelab/recstore/internal/storage"
)

// maxUploadSize bounds a CSV body posted to create a recording
const maxUploadSize = 32 << 20

// Server represents the web server for controlling recstore
type Server struct {
	service service.Service
	port    string
}

// StatusResponse represents the JSON response for the status endpoint
type StatusResponse struct {
	service.Status
	Profile string `json:"profile"`
}

// RecordingsResponse represents the JSON response for the recordings endpoint
type RecordingsResponse struct {
	Recordings []service.RecordingInfo `json:"recordings"`
	TotalCount int                     `json:"total_count"`
}

// StartRequest represents a request to start a synthetic recording session
type StartRequest struct {
	// Count limits the number of records, zero records until stopped
	Count int `json:"count"`
}

// New creates a new web server instance
func New(svc service.Service, port string) *Server {
	return &Server{service: svc, port: port}
}

// Handler returns the HTTP handler serving the API
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/clear-error", s.handleClearError)
	mux.HandleFunc("GET /api/recordings", s.handleRecordings)
	mux.HandleFunc("POST /api/recordings", s.handleUploadRecording)
	mux.HandleFunc("GET /api/recordings/{name}", s.handleRecordingStream)
	mux.HandleFunc("DELETE /api/recordings/{name}", s.handleDeleteRecording)
	mux.HandleFunc("POST /api/recordings/{name}/offload", s.handleOffload)
	mux.HandleFunc("POST /api/offload", s.handleOffloadAll)
	// Live recording
	mux.HandleFunc("POST /api/record/start", s.handleStartRecording)
	mux.HandleFunc("POST /api/record/stop", s.handleStopRecording)
	return mux
}

// Start starts the web server and shuts it down when ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	localIP := getLocalIP()
	slog.Info("Starting recstore Web Server",
		"port", s.port,
		"local_url", fmt.Sprintf("http://%s:%s", localIP, s.port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", s.port))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("Shutting down web server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	}
}

// handleIndex serves a short description of the API
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write([]byte(getDefaultHTML()))
}

func getDefaultHTML() string {
	return `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>recstore</title>
</head>
<body>
    <h1>recstore</h1>
    <h2>API Endpoints:</h2>
    <ul>
        <li>GET /api/status - Store state and last error</li>
        <li>GET /api/recordings - List recordings</li>
        <li>POST /api/recordings - Create a recording from a CSV body</li>
        <li>GET /api/recordings/{name} - Stream a recording (?format=csv|jsonl)</li>
        <li>DELETE /api/recordings/{name} - Remove a recording</li>
        <li>POST /api/recordings/{name}/offload - Upload a recording</li>
        <li>POST /api/offload - Upload every recording</li>
        <li>POST /api/record/start - Start a synthetic recording</li>
        <li>POST /api/record/stop - Stop the running recording</li>
        <li>POST /api/clear-error - Re-initialize the medium</li>
    </ul>
</body>
</html>`
}

// handleStatus returns the current store state and session info
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	response := StatusResponse{
		Status:  s.service.GetStatus(),
		Profile: s.service.GetConfig().Profile,
	}
	writeJSON(w, http.StatusOK, response)
}

// handleClearError re-initializes the medium after a failure
func (s *Server) handleClearError(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ClearError(); err != nil {
		s.sendErrorResponse(w, statusFor(err),
			fmt.Sprintf("Failed to clear error: %v", err),
			"operation", "clear_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"state":   s.service.GetStatus().State,
	})
}

// handleRecordings lists the recordings on the medium
func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	recordings, err := s.service.ListRecordings()
	if err != nil {
		s.sendErrorResponse(w, statusFor(err),
			fmt.Sprintf("Failed to list recordings: %v", err),
			"operation", "list_recordings")
		return
	}

	writeJSON(w, http.StatusOK, RecordingsResponse{
		Recordings: recordings,
		TotalCount: len(recordings),
	})
}

// handleUploadRecording creates a recording from the CSV rows in the body
func (s *Server) handleUploadRecording(w http.ResponseWriter, r *http.Request) {
	channels := s.service.GetConfig().Acquire.Channels
	body := http.MaxBytesReader(w, r.Body, maxUploadSize)

	session, err := s.service.Record(r.Context(), acquire.NewCSV(body, channels), 0)
	if err != nil {
		status := statusFor(err)
		if session != nil && storage.CodeOf(err) == storage.CodeNone {
			// a bad row ends the session; the rows before it stay on the medium
			status = http.StatusBadRequest
		}
		s.sendErrorResponse(w, status,
			fmt.Sprintf("Failed to record: %v", err),
			"operation", "upload_recording")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"session": session,
	})
}

// handleRecordingStream plays a recording back as CSV or JSON lines
func (s *Server) handleRecordingStream(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	format, err := play.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, err.Error(), "name", name)
		return
	}

	var buf bytes.Buffer
	n, err := s.service.Play(name, &buf, format)
	if err != nil {
		s.sendErrorResponse(w, statusFor(err),
			fmt.Sprintf("Failed to play recording %s: %v", name, err),
			"name", name, "operation", "play")
		return
	}

	contentType := "text/csv; charset=utf-8"
	if format == play.FormatJSONL {
		contentType = "application/x-ndjson"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", name+"."+string(format)))
	w.Header().Set("X-Record-Count", strconv.Itoa(n))
	w.Write(buf.Bytes())
}

// handleDeleteRecording removes a recording from the medium
func (s *Server) handleDeleteRecording(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	if err := s.service.RemoveRecording(name); err != nil {
		s.sendErrorResponse(w, statusFor(err),
			fmt.Sprintf("Failed to remove recording %s: %v", name, err),
			"name", name, "operation", "remove")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("Recording %s removed", name),
	})
}

// handleOffload uploads one recording to object storage
func (s *Server) handleOffload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	res, err := s.service.Offload(r.Context(), name)
	if err != nil {
		s.sendErrorResponse(w, statusFor(err),
			fmt.Sprintf("Failed to offload recording %s: %v", name, err),
			"name", name, "operation", "offload")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"result":  res,
	})
}

// handleOffloadAll uploads every recording to object storage
func (s *Server) handleOffloadAll(w http.ResponseWriter, r *http.Request) {
	results, err := s.service.OffloadAll(r.Context())
	if err != nil {
		slog.Error("Offload stopped early", "uploaded", len(results), "error", err)
		s.sendErrorResponse(w, statusFor(err),
			fmt.Sprintf("Failed to offload recordings: %v", err),
			"uploaded", len(results), "operation", "offload_all")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"results": results,
	})
}

// handleStartRecording starts a synthetic recording paced at the configured
// sample rate
func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, "Invalid request body", "operation", "start_recording")
			return
		}
	}

	acq := s.service.GetConfig().Acquire
	src := acquire.NewSynthetic(acq.Channels, acq.SampleRate, req.Count)
	interval := time.Second / time.Duration(acq.SampleRate)

	slog.Info("Server: Starting recording", "count", req.Count, "interval", interval)
	session, err := s.service.StartRecording(src, interval)
	if err != nil {
		s.sendErrorResponse(w, statusFor(err),
			fmt.Sprintf("Failed to start recording: %v", err),
			"operation", "start_recording")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Recording started",
		"session": session,
	})
}

// handleStopRecording stops the running recording session
func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	session, err := s.service.StopRecording()
	if err != nil {
		s.sendErrorResponse(w, statusFor(err),
			fmt.Sprintf("Failed to stop recording: %v", err),
			"operation", "stop_recording")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Recording stopped",
		"session": session,
	})
}

// statusFor maps service and store errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNoSuchRecording):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidState),
		errors.Is(err, service.ErrRecordingActive),
		errors.Is(err, service.ErrNotRecording):
		return http.StatusConflict
	case errors.Is(err, storage.ErrTooManyFiles):
		return http.StatusInsufficientStorage
	case errors.Is(err, offload.ErrNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	slog.Error("Sending error response to client", logFields...)

	writeJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   errorMsg,
	})
}

func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
