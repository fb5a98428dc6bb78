// Package builderr defines the error taxonomy of the build orchestrator.
//
// Every failure that crosses a component boundary is wrapped in an *Error
// carrying a Kind. The orchestrator uses the Kind to decide whether a failure
// aborts the invocation (configuration, resolution, synthesis, packaging) or
// is recovered at the cycle boundary (compilation, runtime).
package builderr

import (
	"errors"
	"fmt"
)

// Kind classifies an orchestrator failure.
type Kind int

const (
	KindConfig Kind = iota + 1
	KindResolution
	KindSynthesis
	KindCompilation
	KindRuntime
	KindPackaging
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindResolution:
		return "resolution"
	case KindSynthesis:
		return "synthesis"
	case KindCompilation:
		return "compilation"
	case KindRuntime:
		return "runtime"
	case KindPackaging:
		return "packaging"
	default:
		return "unknown"
	}
}

// Error is a classified orchestrator failure.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "resolve loader".
	Op  string
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with the given kind and operation. A nil err yields nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds a classified error from a format string.
func Newf(kind Kind, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func Config(op string, err error) error      { return New(KindConfig, op, err) }
func Resolution(op string, err error) error  { return New(KindResolution, op, err) }
func Synthesis(op string, err error) error   { return New(KindSynthesis, op, err) }
func Compilation(op string, err error) error { return New(KindCompilation, op, err) }
func Runtime(op string, err error) error     { return New(KindRuntime, op, err) }
func Packaging(op string, err error) error   { return New(KindPackaging, op, err) }

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind, true
	}
	return 0, false
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsFatal reports whether err must abort the whole invocation. Unclassified
// errors are treated as fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	k, ok := KindOf(err)
	if !ok {
		return true
	}
	switch k {
	case KindCompilation, KindRuntime:
		return false
	default:
		return true
	}
}

// ExitError carries a process exit code forwarded from an executed artifact.
type ExitError struct {
	Code int
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	return fmt.Sprintf("worker exited with code %d", e.Code)
}

// ExitCode maps an error to the process exit code of the CLI.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Code != 0 {
		return exitErr.Code
	}
	return 1
}
