package storage

// State is the current mode of the store
type State int

const (
	StateIdle State = iota
	StateError
	StateRecording
	StateReading
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateError:
		return "Error"
	case StateRecording:
		return "Recording"
	case StateReading:
		return "Reading"
	}
	return "<State>"
}

// ErrorCode is the sticky medium error recorded while in StateError
type ErrorCode int

const (
	CodeNone ErrorCode = iota
	CodeCanNotInitialize
	CodeCanNotOpenFile
	CodeCanNotRemoveFile
	CodeFileSystemError
	CodeTooManyFiles
)

func (c ErrorCode) String() string {
	switch c {
	case CodeNone:
		return "None"
	case CodeCanNotInitialize:
		return "CanNotInitialize"
	case CodeCanNotOpenFile:
		return "CanNotOpenFile"
	case CodeCanNotRemoveFile:
		return "CanNotRemoveFile"
	case CodeFileSystemError:
		return "FileSystemError"
	case CodeTooManyFiles:
		return "TooManyFiles"
	}
	return "<Error>"
}
