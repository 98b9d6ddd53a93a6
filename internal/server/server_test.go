package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/audiolibrelab/recstore/internal/config"
	"github.com/audiolibrelab/recstore/internal/medium"
	"github.com/audiolibrelab/recstore/internal/offload"
	"github.com/audiolibrelab/recstore/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct{}

func (fakeUploader) Upload(_ context.Context, name string, r offload.RecordReader) (*offload.Result, error) {
	buf := make([]float32, 256)
	records := 0
	for {
		_, err := r.ReadRecord(buf)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		records++
	}
	return &offload.Result{Name: name, Key: "dev/" + name + ".rec", Records: records}, nil
}

func newTestServer(t *testing.T, opts ...service.Option) http.Handler {
	t.Helper()
	cfg := config.Default()
	cfg.Medium = config.MediumConfig{Backend: "memory"}
	cfg.Acquire.Channels = 3
	cfg.Acquire.SampleRate = 1000

	opts = append([]service.Option{service.WithDriver(medium.NewMemory())}, opts...)
	svc, err := service.New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	return New(svc, "0").Handler()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestIndex(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/recordings")
}

func TestStatus(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/status", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Idle", body["state"])
	assert.Equal(t, "None", body["error_code"])
	assert.Equal(t, float64(0), body["next_index"])
	assert.Equal(t, "default", body["profile"])
}

func TestStatusMethodNotAllowed(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPut, "/api/status", "")

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestUploadListAndStream(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/recordings", "1,2,3\n4,5,6\n")
	require.Equal(t, http.StatusCreated, rec.Code)
	session := decode(t, rec)["session"].(map[string]interface{})
	assert.Equal(t, "00000", session["name"])
	assert.Equal(t, float64(2), session["records"])

	rec = do(t, h, http.MethodGet, "/api/recordings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list RecordingsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.TotalCount)
	assert.Equal(t, "00000", list.Recordings[0].Name)
	assert.Equal(t, int64(26), list.Recordings[0].Size)

	rec = do(t, h, http.MethodGet, "/api/recordings/00000", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1,2,3\n4,5,6\n", rec.Body.String())
	assert.Equal(t, "2", rec.Header().Get("X-Record-Count"))
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")

	rec = do(t, h, http.MethodGet, "/api/recordings/00000?format=jsonl", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	assert.Equal(t, "{\"index\":0,\"values\":[1,2,3]}\n{\"index\":1,\"values\":[4,5,6]}\n", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/recordings/00000?format=wav", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadBadRow(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/recordings", "1,2,3\n1,2\n")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, decode(t, rec)["success"])
}

func TestStreamMissingRecording(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/recordings/00042", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "no such recording")
}

func TestDeleteRecording(t *testing.T) {
	h := newTestServer(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/recordings", "1,2,3\n").Code)

	rec := do(t, h, http.MethodDelete, "/api/recordings/00000", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/recordings/00000", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartStopRecording(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/record/start", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/record/start", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	// listing is refused while the recording is open
	rec = do(t, h, http.MethodGet, "/api/recordings", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/record/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Recording stopped", decode(t, rec)["message"])

	rec = do(t, h, http.MethodPost, "/api/record/stop", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStartRecordingWithCount(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/record/start", `{"count": 5}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool {
		body := decode(t, do(t, h, http.MethodGet, "/api/status", ""))
		last, ok := body["last_session"].(map[string]interface{})
		return ok && last["records"] == float64(5)
	}, 2*time.Second, 10*time.Millisecond)

	rec = do(t, h, http.MethodGet, "/api/recordings/00000", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("X-Record-Count"))
}

func TestStartRecordingBadBody(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/record/start", "{")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOffload(t *testing.T) {
	h := newTestServer(t, service.WithUploader(fakeUploader{}))
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/recordings", "1,2,3\n4,5,6\n").Code)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/recordings", "7,8,9\n").Code)

	rec := do(t, h, http.MethodPost, "/api/recordings/00000/offload", "")
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode(t, rec)["result"].(map[string]interface{})
	assert.Equal(t, "dev/00000.rec", result["key"])
	assert.Equal(t, float64(2), result["records"])

	rec = do(t, h, http.MethodPost, "/api/offload", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["results"], 2)

	rec = do(t, h, http.MethodPost, "/api/recordings/00009/offload", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOffloadNotConfigured(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/offload", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestClearError(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/clear-error", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Idle", decode(t, rec)["state"])
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
	assert.Equal(t, http.StatusConflict, statusFor(service.ErrNotRecording))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(offload.ErrNotConfigured))
}
