package error

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrorCategory classifies errors by their nature and appropriate handling strategy.
type ErrorCategory int

const (
	// ErrCategoryUser represents errors caused by a caller breaking the
	// contract, such as committing an xid that was never issued.
	ErrCategoryUser ErrorCategory = iota

	// ErrCategoryTransient represents temporary errors that might succeed on retry.
	ErrCategoryTransient

	// ErrCategorySystem represents errors requiring administrator intervention.
	// Examples: ledger file already present, permission denied, use after close.
	ErrCategorySystem

	// ErrCategoryData represents errors related to corrupted on-disk state.
	ErrCategoryData

	// ErrCategoryConcurrency represents conflicts between transactions.
	// A deadlock is never retried by the kernel; the requester must abort.
	ErrCategoryConcurrency
)

func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryUser:
		return "USER"
	case ErrCategoryTransient:
		return "TRANSIENT"
	case ErrCategorySystem:
		return "SYSTEM"
	case ErrCategoryData:
		return "DATA"
	case ErrCategoryConcurrency:
		return "CONCURRENCY"
	default:
		return "UNKNOWN"
	}
}

// DBError represents a structured error with rich context information.
type DBError struct {
	// Code is a unique identifier for this error type (e.g., "DEADLOCK_DETECTED").
	Code string

	// Category classifies the error for appropriate handling strategy.
	Category ErrorCategory

	// Message is a human-readable description of what went wrong.
	Message string

	// Detail provides additional context about the specific error instance.
	// Example: "1 -> 2 -> 1" for a deadlock.
	Detail string

	// Hint suggests how the caller might fix or work around this error.
	Hint string

	// Operation identifies the operation being performed, e.g. "Begin", "Add".
	Operation string

	// Component identifies where the error originated, e.g. "Ledger", "LockTable".
	Component string

	// Cause is the underlying error that triggered this one.
	Cause error

	// Stack contains the call stack where this error was created.
	Stack []uintptr
}

// New creates a new DBError with the specified code, category, and message.
func New(category ErrorCategory, code, message string) *DBError {
	return &DBError{
		Code:     code,
		Category: category,
		Message:  message,
		Stack:    captureStack(),
	}
}

// Wrap wraps an existing error with operation and component context.
// If the error is already a DBError, it enriches the existing error
// (only fields that are not already set).
func Wrap(err error, code, operation, component string) *DBError {
	if err == nil {
		return nil
	}

	var dbErr *DBError
	if errors.As(err, &dbErr) {
		if dbErr.Operation == "" {
			dbErr.Operation = operation
		}
		if dbErr.Component == "" {
			dbErr.Component = component
		}
		return dbErr
	}

	return &DBError{
		Code:      code,
		Category:  ErrCategorySystem,
		Message:   err.Error(),
		Operation: operation,
		Component: component,
		Cause:     err,
		Stack:     captureStack(),
	}
}

// Instance returns a copy of a sentinel error carrying per-call context.
// The copy keeps the sentinel's Code, so errors.Is against the sentinel
// still matches.
func (e *DBError) Instance(operation, component string) *DBError {
	clone := *e
	clone.Operation = operation
	clone.Component = component
	clone.Stack = captureStack()
	return &clone
}

// WithDetail sets Detail and returns the receiver for chaining.
func (e *DBError) WithDetail(format string, args ...any) *DBError {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// WithCause sets Cause and returns the receiver for chaining.
func (e *DBError) WithCause(cause error) *DBError {
	e.Cause = cause
	return e
}

// captureStack skips captureStack, its caller inside this package and the
// immediate caller, focusing on the actual error origin.
func captureStack() []uintptr {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	return pcs[0:n]
}

// Error implements the standard Go error interface
//
// The format follows the pattern:
// [ERROR_CODE] Message: Detail (operation: Operation, component: Component) caused by: underlying error
func (e *DBError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Detail != "" {
		b.WriteString(fmt.Sprintf(": %s", e.Detail))
	}

	if e.Operation != "" {
		b.WriteString(fmt.Sprintf(" (operation: %s", e.Operation))
		if e.Component != "" {
			b.WriteString(fmt.Sprintf(", component: %s", e.Component))
		}
		b.WriteString(")")
	}

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(" caused by: %v", e.Cause))
	}

	return b.String()
}

// Unwrap returns the underlying cause error, enabling error chain traversal.
func (e *DBError) Unwrap() error {
	return e.Cause
}

// Is matches any DBError with the same Code.
func (e *DBError) Is(target error) bool {
	t, ok := target.(*DBError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// FormatStack returns a human-readable stack trace for debugging purposes.
func (e *DBError) FormatStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var b strings.Builder
	frames := runtime.CallersFrames(e.Stack)

	b.WriteString("Stack trace:\n")
	for {
		f, more := frames.Next()
		b.WriteString(fmt.Sprintf("  %s\n    %s:%d\n",
			f.Function, f.File, f.Line))
		if !more {
			break
		}
	}

	return b.String()
}

// CategoryOf returns the category of the first DBError in err's chain.
func CategoryOf(err error) (ErrorCategory, bool) {
	var dbErr *DBError
	if !errors.As(err, &dbErr) {
		return 0, false
	}
	return dbErr.Category, true
}

// IsConcurrency reports whether err is a transaction conflict.
func IsConcurrency(err error) bool {
	c, ok := CategoryOf(err)
	return ok && c == ErrCategoryConcurrency
}

// IsSystem reports whether err needs operator attention.
func IsSystem(err error) bool {
	c, ok := CategoryOf(err)
	return ok && c == ErrCategorySystem
}
