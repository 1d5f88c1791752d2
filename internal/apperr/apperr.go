// Package apperr holds the business-rule rejections returned by the engine.
// None of them are transient; callers must not retry them.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an Error.
type Kind string

const (
	KindValidation             Kind = "VALIDATION_ERROR"
	KindInvalidTransition      Kind = "INVALID_TRANSITION"
	KindInvalidRouting         Kind = "INVALID_ROUTING"
	KindNotFound               Kind = "NOT_FOUND"
	KindConcurrentModification Kind = "CONCURRENT_MODIFICATION"
	KindAlreadyAssigned        Kind = "ALREADY_ASSIGNED"
	KindConflict               Kind = "CONFLICT"
)

// Error is a typed rejection with enough context for a client to explain it.
type Error struct {
	Kind    Kind           `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches any *Error of the same Kind, so errors.Is(err, apperr.ErrNotFound) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// HTTPStatus maps the kind onto a response code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidTransition, KindInvalidRouting, KindConcurrentModification, KindAlreadyAssigned, KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Sentinels for errors.Is.
var (
	ErrValidation             = &Error{Kind: KindValidation}
	ErrInvalidTransition      = &Error{Kind: KindInvalidTransition}
	ErrInvalidRouting         = &Error{Kind: KindInvalidRouting}
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrConcurrentModification = &Error{Kind: KindConcurrentModification}
	ErrAlreadyAssigned        = &Error{Kind: KindAlreadyAssigned}
	ErrConflict               = &Error{Kind: KindConflict}
)

// Validation reports a missing or malformed field.
func Validation(field, message string) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: message,
		Details: map[string]any{"field": field},
	}
}

// InvalidTransition reports an event that is not legal from the current status.
func InvalidTransition(current, event string) *Error {
	return &Error{
		Kind:    KindInvalidTransition,
		Message: fmt.Sprintf("cannot apply %q while status is %q", event, current),
		Details: map[string]any{"current_status": current, "event": event},
	}
}

// InvalidRouting reports a warranty routing attempt that would break the one-level chain.
func InvalidRouting(issueID, reason string) *Error {
	return &Error{
		Kind:    KindInvalidRouting,
		Message: reason,
		Details: map[string]any{"issue_id": issueID},
	}
}

// NotFound reports an unknown id.
func NotFound(resource, id string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Details: map[string]any{"resource": resource, "identifier": id},
	}
}

// ConcurrentModification reports an optimistic-lock mismatch.
func ConcurrentModification(resource, id string) *Error {
	return &Error{
		Kind:    KindConcurrentModification,
		Message: fmt.Sprintf("%s %s was modified concurrently", resource, id),
		Details: map[string]any{"resource": resource, "identifier": id},
	}
}

// AlreadyAssigned reports an assignment on an issue that already has a technician.
func AlreadyAssigned(issueID, technician string) *Error {
	return &Error{
		Kind:    KindAlreadyAssigned,
		Message: fmt.Sprintf("issue is already assigned to %s; reopen it to reassign", technician),
		Details: map[string]any{"issue_id": issueID, "technician_name": technician},
	}
}

// Conflict reports a uniqueness violation.
func Conflict(resource, field, value string) *Error {
	return &Error{
		Kind:    KindConflict,
		Message: fmt.Sprintf("%s with %s %q already exists", resource, field, value),
		Details: map[string]any{"resource": resource, "field": field, "value": value},
	}
}

// WithDetail returns e with one more diagnostic entry.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}
