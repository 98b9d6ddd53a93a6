package acquire

import (
	"io"
	"math"
	"strings"
	"testing"

	"github.com/audiolibrelab/recstore/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, src Source) [][]float32 {
	t.Helper()
	var records [][]float32
	for {
		rec, err := src.Next()
		if err == io.EOF {
			return records
		}
		require.NoError(t, err)
		records = append(records, rec)
	}
}

func TestCSVSource(t *testing.T) {
	input := "# x,y,z\n1,2,3\n\n 4.5, -6,7e2\n"
	src := NewCSV(strings.NewReader(input), 3)
	defer src.Close()

	assert.Equal(t, [][]float32{{1, 2, 3}, {4.5, -6, 700}}, drain(t, src))
}

func TestCSVSourceChannelMismatch(t *testing.T) {
	src := NewCSV(strings.NewReader("1,2,3\n1,2\n"), 3)

	_, err := src.Next()
	require.NoError(t, err)

	_, err = src.Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2: expected 3 values, got 2")
}

func TestCSVSourceAnyWidth(t *testing.T) {
	src := NewCSV(strings.NewReader("1\n1,2\n"), 0)

	assert.Equal(t, [][]float32{{1}, {1, 2}}, drain(t, src))
}

func TestCSVSourceBadValue(t *testing.T) {
	src := NewCSV(strings.NewReader("1,abc\n"), 2)

	_, err := src.Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "value 2")
}

func TestSyntheticSource(t *testing.T) {
	src := NewSynthetic(3, 4, 5)
	records := drain(t, src)

	require.Len(t, records, 5)
	for _, rec := range records {
		assert.Len(t, rec, 3)
	}
	assert.Equal(t, []float32{0, 0, 0}, records[0])
	// quarter period of the 1 Hz channel at 4 Hz sampling
	assert.InDelta(t, 1.0, records[1][0], 1e-6)
	assert.InDelta(t, 0.0, records[1][1], 1e-6)

	_, err := src.Next()
	assert.Equal(t, io.EOF, err)
}

func TestSyntheticSourceUnbounded(t *testing.T) {
	src := NewSynthetic(1, 250, 0)
	for i := 0; i < 1000; i++ {
		rec, err := src.Next()
		require.NoError(t, err)
		assert.False(t, math.IsNaN(float64(rec[0])))
	}
}

func TestNewSource(t *testing.T) {
	src, err := NewSource(config.AcquireConfig{Backend: "Synthetic", Channels: 2, SampleRate: 10}, Options{Count: 2})
	require.NoError(t, err)
	assert.IsType(t, &SyntheticSource{}, src)
	assert.Len(t, drain(t, src), 2)

	src, err = NewSource(config.AcquireConfig{Backend: "csv", Channels: 1}, Options{Input: strings.NewReader("1\n")})
	require.NoError(t, err)
	assert.IsType(t, &CSVSource{}, src)

	_, err = NewSource(config.AcquireConfig{Backend: "csv", Channels: 1}, Options{})
	assert.Error(t, err)

	assert.Equal(t, []BackendType{BackendTypeCSV, BackendTypeSynthetic}, GetAvailableBackends())
}
