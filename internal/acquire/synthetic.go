package acquire

import (
	"io"
	"math"
)

// SyntheticSource generates a sine wave per channel, each channel one octave
// above the previous, starting at 1 Hz.
type SyntheticSource struct {
	channels   int
	sampleRate int
	count      int
	n          int
}

// NewSynthetic creates a source producing count records of the given width.
// A count of zero or less never ends.
func NewSynthetic(channels, sampleRate, count int) *SyntheticSource {
	if channels < 1 {
		channels = 1
	}
	if sampleRate < 1 {
		sampleRate = 1
	}
	return &SyntheticSource{channels: channels, sampleRate: sampleRate, count: count}
}

func (s *SyntheticSource) Next() ([]float32, error) {
	if s.count > 0 && s.n >= s.count {
		return nil, io.EOF
	}

	t := float64(s.n) / float64(s.sampleRate)
	values := make([]float32, s.channels)
	for ch := range values {
		freq := math.Exp2(float64(ch))
		values[ch] = float32(math.Sin(2 * math.Pi * freq * t))
	}
	s.n++
	return values, nil
}

func (s *SyntheticSource) Close() error {
	return nil
}
