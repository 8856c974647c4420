package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure. The set is closed: every error the
// engines return wraps exactly one of these sentinels so callers can match
// with errors.Is instead of inspecting strings.
type Kind struct {
	name string
}

func (k *Kind) Error() string { return k.name }

var (
	// ErrValidation marks malformed input: missing field, non-positive
	// amount, unknown account kind or category.
	ErrValidation = &Kind{name: "validation_error"}

	// ErrNotFound marks a reference to a record that does not exist.
	ErrNotFound = &Kind{name: "not_found"}

	// ErrForbidden marks an actor lacking the role or membership the
	// operation requires.
	ErrForbidden = &Kind{name: "forbidden"}

	// ErrInsufficientFunds marks a debit that would break an account's
	// minimum-balance rule.
	ErrInsufficientFunds = &Kind{name: "insufficient_funds"}

	// ErrAccountClosed marks an operation against a non-active account.
	ErrAccountClosed = &Kind{name: "account_closed"}

	// ErrInvalidStateTransition marks a status change not reachable from
	// the current status.
	ErrInvalidStateTransition = &Kind{name: "invalid_state_transition"}

	// ErrConcurrentModification marks a compare-and-swap that lost a race.
	// The caller may retry.
	ErrConcurrentModification = &Kind{name: "concurrent_modification"}

	// ErrPersistence marks a storage collaborator failure. It is always
	// surfaced and never leaves a partial mutation visible.
	ErrPersistence = &Kind{name: "persistence_failure"}
)

// Error is the failure value returned by every engine operation. It carries
// a stable, inspectable detail payload alongside the kind.
type Error struct {
	Kind    *Kind
	Entity  string
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind.name, e.Entity, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind.name, e.Message)
}

// Unwrap exposes the kind sentinel so errors.Is(err, domain.ErrNotFound)
// matches.
func (e *Error) Unwrap() error { return e.Kind }

// Errf builds a domain error with a formatted message and no details.
func Errf(kind *Kind, entity, format string, args ...any) *Error {
	return &Error{Kind: kind, Entity: entity, Message: fmt.Sprintf(format, args...)}
}

// WithDetails attaches the detail payload and returns the same error.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// KindOf returns the kind of err, or nil when err is not a domain error.
func KindOf(err error) *Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return nil
}

// Persistence wraps a storage failure, preserving the cause in the details.
func Persistence(entity string, cause error) *Error {
	return &Error{
		Kind:    ErrPersistence,
		Entity:  entity,
		Message: cause.Error(),
		Details: map[string]any{"cause": cause.Error()},
	}
}
