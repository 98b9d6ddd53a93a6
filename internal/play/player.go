package play

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/audiolibrelab/recstore/internal/storage"
)

// Format is the output encoding used during playback
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
)

// initialBufferSize fits every record a three channel device writes
const initialBufferSize = 16

// RecordReader is the read side of an open recording
type RecordReader interface {
	ReadRecord(buf []float32) (int, error)
}

// Player streams the records of an open recording to a writer.
type Player struct {
	w      io.Writer
	format Format
}

// ParseFormat validates a format name
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(name)) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatJSONL:
		return FormatJSONL, nil
	default:
		return "", fmt.Errorf("unsupported playback format: %s (valid: csv, jsonl)", name)
	}
}

func New(w io.Writer, format Format) *Player {
	return &Player{w: w, format: format}
}

// Play reads records until the end of the recording and returns how many
// were written. The buffer grows whenever a record does not fit.
func (p *Player) Play(r RecordReader) (int, error) {
	enc := p.encoder()
	buf := make([]float32, initialBufferSize)

	count := 0
	for {
		n, err := r.ReadRecord(buf)
		var sbe *storage.ShortBufferError
		if errors.As(err, &sbe) {
			slog.Debug("growing playback buffer", "from", len(buf), "to", sbe.Need+1)
			buf = make([]float32, sbe.Need+1)
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return count, fmt.Errorf("read record %d: %w", count, err)
		}

		if err := enc.encode(count, buf[:n]); err != nil {
			return count, fmt.Errorf("write record %d: %w", count, err)
		}
		count++
	}

	if err := enc.flush(); err != nil {
		return count, err
	}
	return count, nil
}

type recordEncoder interface {
	encode(index int, values []float32) error
	flush() error
}

func (p *Player) encoder() recordEncoder {
	if p.format == FormatJSONL {
		return &jsonlEncoder{enc: json.NewEncoder(p.w)}
	}
	return &csvEncoder{w: csv.NewWriter(p.w)}
}

type csvEncoder struct {
	w   *csv.Writer
	row []string
}

func (e *csvEncoder) encode(_ int, values []float32) error {
	e.row = e.row[:0]
	for _, v := range values {
		e.row = append(e.row, strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	return e.w.Write(e.row)
}

func (e *csvEncoder) flush() error {
	e.w.Flush()
	return e.w.Error()
}

// sample encodes non-finite values as null, which JSON has no number for
type sample float32

func (s sample) MarshalJSON() ([]byte, error) {
	f := float64(s)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 32), nil
}

type jsonlRecord struct {
	Index  int      `json:"index"`
	Values []sample `json:"values"`
}

type jsonlEncoder struct {
	enc *json.Encoder
}

func (e *jsonlEncoder) encode(index int, values []float32) error {
	rec := jsonlRecord{Index: index, Values: make([]sample, len(values))}
	for i, v := range values {
		rec.Values[i] = sample(v)
	}
	return e.enc.Encode(rec)
}

func (e *jsonlEncoder) flush() error {
	return nil
}
