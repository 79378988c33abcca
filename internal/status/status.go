// Package status defines the engine's error taxonomy. Every operation
// failure is an *Error carrying a Kind, so callers can branch with
// errors.Is(err, status.ErrCapacityExceeded) or status.KindOf(err).
package status

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindStateGuard        Kind = "state_guard"
	KindCapacityExceeded  Kind = "capacity_exceeded"
	KindConflict          Kind = "conflict"
	KindDuplicate         Kind = "duplicate"
	KindTransientConflict Kind = "transient_conflict"
	KindInternal          Kind = "internal"
)

// Sentinels for errors.Is matching; they compare by Kind only.
var (
	ErrValidation        = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "not found"}
	ErrStateGuard        = &Error{Kind: KindStateGuard, Message: "operation not allowed in current state"}
	ErrCapacityExceeded  = &Error{Kind: KindCapacityExceeded, Message: "capacity exceeded"}
	ErrConflict          = &Error{Kind: KindConflict, Message: "conflict"}
	ErrDuplicate         = &Error{Kind: KindDuplicate, Message: "duplicate"}
	ErrTransientConflict = &Error{Kind: KindTransientConflict, Message: "concurrent update, retry"}
	ErrInternal          = &Error{Kind: KindInternal, Message: "internal error"}
)

type Error struct {
	Kind     Kind              `json:"kind"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Cause    error             `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func WithMetadata(kind Kind, message string, metadata map[string]string) *Error {
	return &Error{Kind: kind, Message: message, Metadata: metadata}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

func NotFound(entity, id string) *Error {
	return WithMetadata(KindNotFound, fmt.Sprintf("%s %s not found", entity, id), map[string]string{
		"entity": entity,
		"id":     id,
	})
}

func StateGuard(format string, args ...any) *Error {
	return New(KindStateGuard, format, args...)
}

// KindOf reports the Kind of the first *Error in err's chain. Errors outside
// the taxonomy are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// AsError returns err as an *Error, wrapping foreign errors as internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(KindInternal, "unexpected failure", err)
}
