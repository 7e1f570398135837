// Package apperr defines the error taxonomy shared by every layer.
// Handlers map kinds to HTTP status codes; services wrap backend and store
// failures into kinds instead of leaking driver errors upward.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind string

const (
	// KindInvariant: domain-model construction rejected a value. Non-retryable.
	KindInvariant Kind = "INVARIANT"
	// KindPolicyViolation: a plan with blocking violations was submitted for apply.
	KindPolicyViolation Kind = "POLICY_VIOLATION"
	// KindPolicyConfig: a persisted policy row is malformed.
	KindPolicyConfig Kind = "POLICY_CONFIG_ERROR"
	// KindNotFound: resource id has no row.
	KindNotFound Kind = "NOT_FOUND"
	// KindInactive: endpoint exists but is_active=false.
	KindInactive Kind = "INACTIVE"
	// KindStale: plan-time snapshot no longer matches live state.
	KindStale Kind = "STALE_PLAN"
	// KindBackend: Kafka / Schema Registry / object storage call failed.
	KindBackend Kind = "BACKEND"
	// KindMetadataStore: persistence failed.
	KindMetadataStore Kind = "METADATA_STORE"
	// KindRollback: compensation failed. Logged CRITICAL, never user-visible.
	KindRollback Kind = "ROLLBACK"
)

// Error carries a kind, a user-safe message and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around a cause.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or "" when err carries no kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Invariant is shorthand for the most common construction-time failure.
func Invariant(format string, args ...interface{}) *Error {
	return New(KindInvariant, format, args...)
}

// NotFound is shorthand for a missing resource id.
func NotFound(resource, id string) *Error {
	return New(KindNotFound, "%s not found: %s", resource, id)
}

// Inactive is shorthand for a disabled endpoint.
func Inactive(resource, id string) *Error {
	return New(KindInactive, "%s is inactive: %s", resource, id)
}
