package utils

import (
	"errors"
	"fmt"
)

// ErrConfig marks configuration errors. They abort a run before any persisted
// state is written.
var ErrConfig = errors.New("configuration error")

// ErrNotFound marks absent persisted state.
var ErrNotFound = errors.New("not found")

// AppError wraps an operation, human-facing message, and underlying error.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// NewConfigError constructs an AppError that matches ErrConfig.
func NewConfigError(op, format string, args ...any) error {
	return &AppError{Op: op, Msg: fmt.Sprintf(format, args...), Err: ErrConfig}
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfig)
}
