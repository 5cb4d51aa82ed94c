package pipe

import (
	"errors"
	"fmt"
)

// Error codes for channel operations.
const (
	ErrCodeCreate     = "CREATE_FAILED"
	ErrCodeOpen       = "OPEN_FAILED"
	ErrCodeGone       = "CHANNEL_GONE"
	ErrCodeShortWrite = "SHORT_WRITE"
	ErrCodeRead       = "READ_FAILED"
	ErrCodeClear      = "CLEAR_FAILED"
)

// Error is a transport error carrying the channel path it happened on.
type Error struct {
	Code  string
	Path  string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Path, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Path)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// HasCode reports whether err is a transport error with the given code.
func HasCode(err error, code string) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Code == code
}

func newError(code, path string, cause error) *Error {
	return &Error{
		Code:  code,
		Path:  path,
		Cause: cause,
	}
}
