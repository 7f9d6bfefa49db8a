// Package fault carries the error taxonomy shared by the lobby and game layers.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for transport-level mapping.
type Kind int

const (
	// KindUnknown covers failures outside the taxonomy (infrastructure errors).
	KindUnknown Kind = iota
	// KindNotFound marks lookups of unknown games or invitations.
	KindNotFound
	// KindForbidden marks callers acting on resources they do not own.
	KindForbidden
	// KindInvalidArgument marks malformed input such as bad squares or self-invites.
	KindInvalidArgument
	// KindInvalidState marks operations valid in form but not in the current state.
	KindInvalidState
	// KindConflict marks benign concurrent races that may be retried.
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindInvalidState:
		return "invalid_state"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Error pairs a taxonomy kind with a human-readable message and optional cause.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

// New constructs a taxonomy error without a cause.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Wrap constructs a taxonomy error around an underlying cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{kind: kind, msg: msg, cause: cause}
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return fmt.Sprintf("%s: %v", e.msg, e.cause)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Kind exposes the taxonomy classification.
func (e *Error) Kind() Kind {
	return e.kind
}

// KindOf extracts the taxonomy kind from any error chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.kind
	}
	return KindUnknown
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
