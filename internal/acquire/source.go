package acquire

import (
	"fmt"
	"io"
	"strings"

	"github.com/audiolibrelab/recstore/internal/config"
)

// BackendType represents the kind of record source
type BackendType string

const (
	BackendTypeCSV       BackendType = "csv"
	BackendTypeSynthetic BackendType = "synthetic"
)

// Source produces the records of one recording session. Next returns io.EOF
// once the source is exhausted. Close may be called while Next is blocked.
type Source interface {
	Next() ([]float32, error)
	Close() error
}

// Options carries the per-session inputs a source may need
type Options struct {
	// Input is read by the csv backend
	Input io.Reader
	// Count limits the number of records a synthetic source produces
	Count int
}

// NewSource creates a source using the backend selected by configuration
func NewSource(cfg config.AcquireConfig, opts Options) (Source, error) {
	switch determineBackend(cfg) {
	case BackendTypeSynthetic:
		return NewSynthetic(cfg.Channels, cfg.SampleRate, opts.Count), nil
	default:
		if opts.Input == nil {
			return nil, fmt.Errorf("csv source requires an input")
		}
		return NewCSV(opts.Input, cfg.Channels), nil
	}
}

func determineBackend(cfg config.AcquireConfig) BackendType {
	switch strings.ToLower(cfg.Backend) {
	case "synthetic":
		return BackendTypeSynthetic
	default:
		return BackendTypeCSV
	}
}

// GetAvailableBackends returns the list of supported backends
func GetAvailableBackends() []BackendType {
	return []BackendType{BackendTypeCSV, BackendTypeSynthetic}
}
