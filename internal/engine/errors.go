package engine

import (
	"errors"
	"fmt"
)

// ErrPostponed signals that upstream wants this resource retried on a later
// scan. Maps to general action EMPTY with POSTPONED status.
var ErrPostponed = errors.New("processing postponed")

// ExecutorError is a per-resource processing failure: malformed metric file,
// unknown shape, invalid algorithm configuration. It is caught at the
// resource boundary, recorded as an ERROR-status report with the message
// preserved verbatim, and never aborts the batch.
type ExecutorError struct {
	Msg string
	Err error
}

func (e *ExecutorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ExecutorError) Unwrap() error { return e.Err }

// Executorf builds an ExecutorError with a formatted message.
func Executorf(format string, args ...any) *ExecutorError {
	return &ExecutorError{Msg: fmt.Sprintf(format, args...)}
}
