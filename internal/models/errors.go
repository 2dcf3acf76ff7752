package models

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable machine-readable classification surfaced to
// clients alongside the human message.
type ErrorKind string

const (
	KindValidation ErrorKind = "VALIDATION_ERROR" // malformed or missing payload field
	KindRole       ErrorKind = "ROLE_ERROR"       // actor lacks permission for this order or step
	KindState      ErrorKind = "STATE_ERROR"      // operation not legal in the current step or status
	KindNotFound   ErrorKind = "NOT_FOUND"        // order or chat missing
)

// DomainError carries an error kind plus a human-readable message. All
// failed preconditions surface as one of these; nothing is swallowed.
type DomainError struct {
	Kind    ErrorKind
	Message string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is lets errors.Is match against the kind sentinels below.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Kind == e.Kind && t.Message == ""
}

// Kind sentinels for errors.Is checks.
var (
	ErrValidation = &DomainError{Kind: KindValidation}
	ErrRole       = &DomainError{Kind: KindRole}
	ErrState      = &DomainError{Kind: KindState}
	ErrNotFound   = &DomainError{Kind: KindNotFound}
)

// ValidationError reports a malformed or missing payload field.
func ValidationError(format string, args ...interface{}) error {
	return &DomainError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// RoleError reports that the actor may not perform the operation.
func RoleError(format string, args ...interface{}) error {
	return &DomainError{Kind: KindRole, Message: fmt.Sprintf(format, args...)}
}

// StateError reports an operation illegal in the order's current state.
func StateError(format string, args ...interface{}) error {
	return &DomainError{Kind: KindState, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing order or chat log.
func NotFoundError(format string, args ...interface{}) error {
	return &DomainError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the error kind, or "" for non-domain errors.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
