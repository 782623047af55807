package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrorTypeNotFound       ErrorType = "NOT_FOUND"
	ErrorTypeValidation     ErrorType = "VALIDATION"
	ErrorTypeInternal       ErrorType = "INTERNAL"
	ErrorTypeDuplicateName  ErrorType = "DUPLICATE_NAME"
	ErrorTypeStaleHead      ErrorType = "STALE_HEAD"
	ErrorTypeMergeConflict  ErrorType = "MERGE_CONFLICT"
	ErrorTypeIOTimeout      ErrorType = "IO_TIMEOUT"
	ErrorTypeIO             ErrorType = "IO"
	ErrorTypeCorruptHistory ErrorType = "CORRUPT_HISTORY"
)

type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Details any       `json:"details,omitempty"`

	err error
}

// Sentinels for errors.Is; matching is by Type.
var (
	ErrNotFound       = &Error{Type: ErrorTypeNotFound}
	ErrValidation     = &Error{Type: ErrorTypeValidation}
	ErrDuplicateName  = &Error{Type: ErrorTypeDuplicateName}
	ErrStaleHead      = &Error{Type: ErrorTypeStaleHead}
	ErrMergeConflict  = &Error{Type: ErrorTypeMergeConflict}
	ErrIOTimeout      = &Error{Type: ErrorTypeIOTimeout}
	ErrIO             = &Error{Type: ErrorTypeIO}
	ErrCorruptHistory = &Error{Type: ErrorTypeCorruptHistory}
)

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Wrap attaches the underlying cause.
func (e *Error) Wrap(err error) *Error {
	e.err = err
	return e
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// Retryable reports whether the caller may re-read state and try again.
func (e *Error) Retryable() bool {
	return e.Type == ErrorTypeStaleHead || e.Type == ErrorTypeIOTimeout
}

func NotFound(message string) *Error {
	return &Error{
		Type:    ErrorTypeNotFound,
		Message: message,
		Code:    http.StatusNotFound,
	}
}

func ValidationError(message string, details any) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Message: message,
		Code:    http.StatusBadRequest,
		Details: details,
	}
}

func Internal(message string, err error) *Error {
	return (&Error{
		Type:    ErrorTypeInternal,
		Message: message,
		Code:    http.StatusInternalServerError,
	}).Wrap(err)
}

// DuplicateName rejects a repository, branch or tag name already in use.
func DuplicateName(kind, name string) *Error {
	return &Error{
		Type:    ErrorTypeDuplicateName,
		Message: fmt.Sprintf("%s %q already exists", kind, name),
		Code:    http.StatusConflict,
		Details: map[string]string{"kind": kind, "name": name},
	}
}

// StaleHead reports a lost check-and-set on a branch head.
func StaleHead(branch, expected, actual string) *Error {
	return &Error{
		Type:    ErrorTypeStaleHead,
		Message: fmt.Sprintf("branch %s head moved: expected %q, found %q", branch, expected, actual),
		Code:    http.StatusConflict,
		Details: map[string]string{"branch": branch, "expected": expected, "actual": actual},
	}
}

func MergeConflict(message string, conflicts any) *Error {
	return &Error{
		Type:    ErrorTypeMergeConflict,
		Message: message,
		Code:    http.StatusConflict,
		Details: conflicts,
	}
}

func IOTimeout(op string, err error) *Error {
	return (&Error{
		Type:    ErrorTypeIOTimeout,
		Message: fmt.Sprintf("%s timed out", op),
		Code:    http.StatusGatewayTimeout,
	}).Wrap(err)
}

func IO(op string, err error) *Error {
	return (&Error{
		Type:    ErrorTypeIO,
		Message: fmt.Sprintf("%s failed", op),
		Code:    http.StatusServiceUnavailable,
	}).Wrap(err)
}

func CorruptHistory(ref, reason string) *Error {
	return &Error{
		Type:    ErrorTypeCorruptHistory,
		Message: fmt.Sprintf("corrupt history at %s: %s", ref, reason),
		Code:    http.StatusInternalServerError,
		Details: map[string]string{"ref": ref, "reason": reason},
	}
}

// As finds the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func IsRetryable(err error) bool {
	e, ok := As(err)
	return ok && e.Retryable()
}

// Code returns the HTTP status for err, 500 for untyped errors.
func Code(err error) int {
	if e, ok := As(err); ok && e.Code != 0 {
		return e.Code
	}
	return http.StatusInternalServerError
}

// FromContext classifies ctx's error: an expired deadline is IO_TIMEOUT,
// cancellation is IO. Nil while ctx is live.
func FromContext(ctx context.Context, op string) error {
	switch err := ctx.Err(); {
	case err == nil:
		return nil
	case stderrors.Is(err, context.DeadlineExceeded):
		return IOTimeout(op, err)
	default:
		return IO(op, err)
	}
}
