// Package herr declares the typed error kinds propagated across the hub,
// per the error-handling design: normal-flow-control kinds are surfaced as
// typed results rather than logged as errors, recoverable kinds trigger
// local recovery before surfacing, and InternalInvariant resets the
// affected scope rather than crashing the process.
package herr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation-policy purposes.
type Kind int

const (
	InvalidInput Kind = iota
	Conflict
	OnCooldown
	Capped
	LimitExceeded
	NotPending
	WrongEdition
	ServiceUnavailable
	PersistenceDegraded
	InternalInvariant
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "InvalidInput"
	case Conflict:
		return "Conflict"
	case OnCooldown:
		return "OnCooldown"
	case Capped:
		return "Capped"
	case LimitExceeded:
		return "LimitExceeded"
	case NotPending:
		return "NotPending"
	case WrongEdition:
		return "WrongEdition"
	case ServiceUnavailable:
		return "ServiceUnavailable"
	case PersistenceDegraded:
		return "PersistenceDegraded"
	case InternalInvariant:
		return "InternalInvariant"
	default:
		return "Unknown"
	}
}

// Error wraps a Kind with a message and an optional cause, following
// the standard "%w"-wrapping idiom used throughout this module's
// persist and config packages.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error with no cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf constructs an *Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error with a cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// Is reports whether the first *Error found in err's chain has the
// given Kind; an *Error nested deeper under it is not consulted.
func Is(err error, kind Kind) bool {
	var he *Error
	if errors.As(err, &he) {
		return he.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, defaulting to InternalInvariant when err
// is not one of ours — callers should treat that default conservatively.
func KindOf(err error) (Kind, bool) {
	var he *Error
	if errors.As(err, &he) {
		return he.Kind, true
	}
	return InternalInvariant, false
}
