package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState matches every *WrongStateError via errors.Is.
	ErrInvalidState = errors.New("invalid storage state")

	// ErrEmptyRecord is returned when WriteRecord is called without values.
	ErrEmptyRecord = errors.New("record has no values")

	// ErrRecordTooLong is returned when a record exceeds MaxRecordLen values.
	ErrRecordTooLong = errors.New("record exceeds maximum length")

	// ErrNoSuchRecording is returned when a named recording does not exist.
	ErrNoSuchRecording = errors.New("no such recording")

	// ErrTooManyFiles is returned when every name from the scan cursor up is taken.
	ErrTooManyFiles = errors.New("no free recording name")
)

// WrongStateError reports an operation invoked in the wrong state. It never
// changes the store's state.
type WrongStateError struct {
	Op       string
	Expected []State
	Actual   State
}

func (e *WrongStateError) Error() string {
	expected := ""
	for i, s := range e.Expected {
		if i > 0 {
			expected += " or "
		}
		expected += s.String()
	}
	return fmt.Sprintf("storage: %s: not in %s state, current state: %s", e.Op, expected, e.Actual)
}

func (e *WrongStateError) Is(target error) bool { return target == ErrInvalidState }

// MediumError reports a failed medium operation. Code is the error code the
// failure maps to; whether it became sticky depends on the operation.
type MediumError struct {
	Code ErrorCode
	Op   string
	Path string
	Err  error
}

func (e *MediumError) Error() string {
	msg := fmt.Sprintf("storage: %s", e.Op)
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += fmt.Sprintf(": %s", e.Code)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *MediumError) Unwrap() error { return e.Err }

// ShortBufferError is returned by ReadRecord when the next record does not
// fit. The record is left unread; retry with a buffer longer than Need.
type ShortBufferError struct {
	Need int
	Have int
}

func (e *ShortBufferError) Error() string {
	return fmt.Sprintf("storage: not enough space for reading, space: %d, needed: %d", e.Have, e.Need)
}

// CodeOf returns the ErrorCode carried by err, or CodeNone.
func CodeOf(err error) ErrorCode {
	var me *MediumError
	if errors.As(err, &me) {
		return me.Code
	}
	return CodeNone
}
