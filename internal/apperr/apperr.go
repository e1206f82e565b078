// Package apperr defines the kernel's error taxonomy: a small set of
// sentinel kinds that every component reports through, so the transport
// layer can map any error to a status code with one switch instead of
// per-handler ad hoc checks.
package apperr

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Wrap one of these with fmt.Errorf("...: %w", ErrX) and
// check with errors.Is.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrNumeric         = errors.New("numeric error")
	ErrInternal        = errors.New("internal error")
)

// InvalidArgument wraps ErrInvalidArgument with context.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidArgument)
}

// NotFound wraps ErrNotFound with context.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

// Conflict wraps ErrConflict with context.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConflict)
}

// Numeric wraps ErrNumeric with context.
func Numeric(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNumeric)
}

// Internal wraps ErrInternal with context.
func Internal(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInternal)
}

// Is reports whether err is (or wraps) one of the sentinel kinds.
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}
