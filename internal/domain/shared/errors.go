package shared

import (
	"errors"
	"sort"
	"strings"
)

// ErrorKind is the closed set of error categories exposed by the domain.
// Transport layers map kinds to their own status codes.
type ErrorKind string

const (
	// KindValidation is returned before any write; never retried automatically.
	KindValidation ErrorKind = "VALIDATION"
	// KindStateConflict is caller-correctable by refetching current state.
	KindStateConflict ErrorKind = "STATE_CONFLICT"
	// KindAuthorization must be surfaced to the actor and never retried.
	KindAuthorization ErrorKind = "AUTHORIZATION"
	// KindIntegrity is critical and halts automated close and reporting.
	KindIntegrity ErrorKind = "INTEGRITY"
	// KindTransactional means nothing was committed; the operation may be retried.
	KindTransactional ErrorKind = "TRANSACTIONAL"
	// KindNotFound reports a missing aggregate.
	KindNotFound ErrorKind = "NOT_FOUND"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Kind    ErrorKind         `json:"kind"`
	Details map[string]string `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(e.Details[k])
		}
		b.WriteString(")")
	}
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause, if any
func (e *DomainError) Unwrap() error {
	return e.cause
}

// Is matches domain errors by code so that errors.Is works against the
// package-level sentinels even after details were attached.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetail returns a copy of the error carrying an extra detail.
func (e *DomainError) WithDetail(key, value string) *DomainError {
	cp := e.clone()
	cp.Details[key] = value
	return cp
}

// WithDetails returns a copy of the error carrying the given details.
func (e *DomainError) WithDetails(details map[string]string) *DomainError {
	cp := e.clone()
	for k, v := range details {
		cp.Details[k] = v
	}
	return cp
}

// Wrap returns a copy of the error with cause attached.
func (e *DomainError) Wrap(cause error) *DomainError {
	cp := e.clone()
	cp.cause = cause
	return cp
}

func (e *DomainError) clone() *DomainError {
	details := make(map[string]string, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Kind:    e.Kind,
		Details: details,
		cause:   e.cause,
	}
}

// NewDomainError creates a new validation-kind domain error
func NewDomainError(code, message string) *DomainError {
	return NewKindError(KindValidation, code, message)
}

// NewKindError creates a domain error of the given kind
func NewKindError(kind ErrorKind, code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Kind:    kind,
	}
}

// AsDomainError extracts a *DomainError from an error chain.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// KindOf returns the kind of a domain error, or an empty kind for foreign errors.
func KindOf(err error) ErrorKind {
	if de, ok := AsDomainError(err); ok {
		return de.Kind
	}
	return ""
}

// IsRetryable reports whether the whole operation may be retried,
// after refetching state in the state-conflict case.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindStateConflict, KindTransactional:
		return true
	default:
		return false
	}
}

// IsCritical reports integrity failures that must stop automated pipelines.
// The whole chain is inspected, so an integrity failure wrapped by a
// transactional error is still critical.
func IsCritical(err error) bool {
	for err != nil {
		if de, ok := err.(*DomainError); ok && de.Kind == KindIntegrity {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// Common domain errors
var (
	ErrNotFound        = NewKindError(KindNotFound, "NOT_FOUND", "Resource not found")
	ErrAlreadyExists   = NewKindError(KindStateConflict, "ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput    = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrVersionConflict = NewKindError(KindStateConflict, "VERSION_CONFLICT", "Resource was modified by another process")
	ErrInvalidState    = NewKindError(KindStateConflict, "INVALID_STATE", "Operation not allowed in current state")
	ErrUnauthorized    = NewKindError(KindAuthorization, "UNAUTHORIZED", "Not authorized to perform this action")
	ErrTransaction     = NewKindError(KindTransactional, "TRANSACTION_FAILED", "Transaction failed; no changes were committed")
)
