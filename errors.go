package dirwatch

import (
	"errors"
	"strconv"
)

var (
	// ErrBufferInFlight is returned when a read is submitted while the
	// notification buffer is still lent to a previous one.
	ErrBufferInFlight = errors.New("dirwatch: notification buffer is in flight")

	// ErrOverflow reports a completion which carried no records, which is how
	// the facilities signal that changes were dropped.
	ErrOverflow = errors.New("dirwatch: notification queue overflow")

	// ErrDirectoryRemoved reports that the watched directory itself was
	// deleted or moved away.
	ErrDirectoryRemoved = errors.New("dirwatch: watched directory was removed")

	// ErrClosed is returned by operations on a closed watcher.
	ErrClosed = errors.New("dirwatch: watcher is closed")

	// ErrCorruptStream is matched by every *CorruptStreamError.
	ErrCorruptStream = errors.New("dirwatch: corrupt notification stream")
)

// OpenError is returned when the directory cannot be opened for watching.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string { return "dirwatch: open " + e.Path + ": " + e.Err.Error() }
func (e *OpenError) Unwrap() error { return e.Err }

// SubmissionError is returned when a read request could not be armed.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string { return "dirwatch: submit read: " + e.Err.Error() }
func (e *SubmissionError) Unwrap() error { return e.Err }

// CompletionError reports a read which completed with a failure status or
// without transferring any bytes. Err is ErrOverflow for the latter.
type CompletionError struct {
	N   int
	Err error
}

func (e *CompletionError) Error() string {
	return "dirwatch: read completed with " + strconv.Itoa(e.N) + " bytes: " + e.Err.Error()
}

func (e *CompletionError) Unwrap() error { return e.Err }

// CorruptStreamError reports a record chain which does not fit the buffer
// it was decoded from.
type CorruptStreamError struct {
	Offset int
	Reason string
}

func (e *CorruptStreamError) Error() string {
	return "dirwatch: corrupt notification stream at offset " + strconv.Itoa(e.Offset) + ": " + e.Reason
}

// Is makes errors.Is(err, ErrCorruptStream) match.
func (e *CorruptStreamError) Is(target error) bool { return target == ErrCorruptStream }

func corrupt(off int, reason string) error {
	return &CorruptStreamError{Offset: off, Reason: reason}
}
