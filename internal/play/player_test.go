package play

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/audiolibrelab/recstore/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceReader mimics the store's read contract over in-memory records
type sliceReader struct {
	records [][]float32
	pos     int
	short   int
	err     error
}

func (r *sliceReader) ReadRecord(buf []float32) (int, error) {
	if r.err != nil && r.pos == len(r.records) {
		return 0, r.err
	}
	if r.pos >= len(r.records) {
		return 0, io.EOF
	}
	rec := r.records[r.pos]
	if len(rec) >= len(buf) {
		r.short++
		return 0, &storage.ShortBufferError{Need: len(rec), Have: len(buf)}
	}
	r.pos++
	return copy(buf, rec), nil
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat("JSONL")
	require.NoError(t, err)
	assert.Equal(t, FormatJSONL, f)

	_, err = ParseFormat("wav")
	assert.Error(t, err)
}

func TestPlayCSV(t *testing.T) {
	var out bytes.Buffer
	r := &sliceReader{records: [][]float32{{1, 2, 3}, {0.5}}}

	n, err := New(&out, FormatCSV).Play(r)

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "1,2,3\n0.5\n", out.String())
}

func TestPlayGrowsBuffer(t *testing.T) {
	long := make([]float32, 200)
	for i := range long {
		long[i] = float32(i)
	}
	var out bytes.Buffer
	r := &sliceReader{records: [][]float32{{1}, long, {2}}}

	n, err := New(&out, FormatCSV).Play(r)

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, r.short)
}

func TestPlayJSONL(t *testing.T) {
	var out bytes.Buffer
	nan := float32(math.NaN())
	r := &sliceReader{records: [][]float32{{1.5, -2}, {nan, float32(math.Inf(1))}}}

	n, err := New(&out, FormatJSONL).Play(r)

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t,
		"{\"index\":0,\"values\":[1.5,-2]}\n{\"index\":1,\"values\":[null,null]}\n",
		out.String())
}

func TestPlayReadError(t *testing.T) {
	failure := errors.New("medium gone")
	r := &sliceReader{records: [][]float32{{1}}, err: failure}

	n, err := New(io.Discard, FormatCSV).Play(r)

	assert.Equal(t, 1, n)
	assert.ErrorIs(t, err, failure)
}

func TestPlayEmpty(t *testing.T) {
	var out bytes.Buffer

	n, err := New(&out, FormatCSV).Play(&sliceReader{})

	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, out.String())
}
