package storage

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// MaxRecordLen is the largest number of values one record can hold
const MaxRecordLen = math.MaxUint8

const valueSize = 4

// RecordSize returns the encoded size in bytes of a record holding n values
func RecordSize(n int) int {
	return 1 + n*valueSize
}

// EncodeRecord encodes values as one length byte followed by the float32
// values in native byte order.
func EncodeRecord(values []float32) ([]byte, error) {
	if len(values) > MaxRecordLen {
		return nil, fmt.Errorf("%w: %d values", ErrRecordTooLong, len(values))
	}

	buf := make([]byte, RecordSize(len(values)))
	buf[0] = byte(len(values))
	putValues(buf[1:], values)
	return buf, nil
}

// DecodeRecord reads one record from r into a new slice. It returns io.EOF
// when r is exhausted before the length byte and io.ErrUnexpectedEOF when
// the payload is cut short.
func DecodeRecord(r io.Reader) ([]float32, error) {
	var length [1]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return nil, err
	}

	payload := make([]byte, int(length[0])*valueSize)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	values := make([]float32, length[0])
	getValues(values, payload)
	return values, nil
}

func putValues(dst []byte, values []float32) {
	for i, v := range values {
		binary.NativeEndian.PutUint32(dst[i*valueSize:], math.Float32bits(v))
	}
}

func getValues(dst []float32, src []byte) {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.NativeEndian.Uint32(src[i*valueSize:]))
	}
}
