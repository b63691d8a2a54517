// Package errors provides the harness's error taxonomy (spec.md §7) on top
// of the standard errors package and fmt.Errorf, in the same thin-wrapper
// style the teacher repo uses for its own error helpers.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the taxonomy. Use errors.Is against these to decide
// exit codes and warning-vs-fatal handling.
var (
	// ErrConfig covers invalid or conflicting run configuration.
	ErrConfig = errors.New("invalid configuration")
	// ErrOS covers a failed syscall: fork/exec, mmap, thread creation, waitpid.
	ErrOS = errors.New("operating system call failed")
	// ErrKernel is never returned directly; kernel error counts are summed
	// into the final report instead of surfacing as a Go error.
	ErrKernel = errors.New("kernel reported errors")
	// ErrNumeric covers a singular least-squares fit, a zero-sample run, or
	// a non-finite percentile.
	ErrNumeric = errors.New("numeric computation is undefined")
	// ErrQuant is soft: the per-sample span fell below 100x clock
	// resolution. It is counted, never returned as a failure.
	ErrQuant = errors.New("sample span below clock quantization threshold")
)

// New creates a new error with the given message.
func New(message string) error {
	return errors.New(message)
}

// Wrap wraps err with additional context using fmt.Errorf's %w verb.
// Returns nil if err is nil.
func Wrap(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	if len(args) == 0 {
		return fmt.Errorf("%s: %w", format, err)
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Config returns a new formatted error rooted at ErrConfig.
func Config(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConfig)
}

// OS wraps err as an ErrOS-rooted error.
func OS(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", fmt.Sprintf(format, args...), ErrOS, err)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree matching target's type.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
