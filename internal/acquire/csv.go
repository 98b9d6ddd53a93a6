package acquire

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// CSVSource reads one record per CSV row. Blank rows and rows starting with
// '#' are skipped.
type CSVSource struct {
	r        *csv.Reader
	channels int
}

// NewCSV creates a source reading rows from r. A positive channels value
// requires every row to hold exactly that many values.
func NewCSV(r io.Reader, channels int) *CSVSource {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	return &CSVSource{r: cr, channels: channels}
}

func (s *CSVSource) Next() ([]float32, error) {
	row, err := s.r.Read()
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv row: %w", err)
	}
	line, _ := s.r.FieldPos(0)

	if s.channels > 0 && len(row) != s.channels {
		return nil, fmt.Errorf("line %d: expected %d values, got %d", line, s.channels, len(row))
	}

	values := make([]float32, len(row))
	for i, field := range row {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 32)
		if err != nil {
			return nil, fmt.Errorf("line %d: value %d: %w", line, i+1, err)
		}
		values[i] = float32(v)
	}
	return values, nil
}

func (s *CSVSource) Close() error {
	return nil
}
