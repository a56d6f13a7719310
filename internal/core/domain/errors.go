package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrDuplicateUsername = errors.New("username already exists")
	ErrDuplicateEmail    = errors.New("email already exists")
)

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindNotFound
	KindUnauthorized
	KindForbidden
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindNotFound:
		return "NOT_FOUND"
	case KindUnauthorized:
		return "UNAUTHORIZED"
	case KindForbidden:
		return "FORBIDDEN"
	case KindConflict:
		return "CONFLICT"
	case KindInternal:
		return "INTERNAL_ERROR"
	}

	return "INTERNAL_ERROR"
}

// Error is returned by the core services. Message is user facing; Err keeps
// the underlying cause for logs only.
type Error struct {
	Kind    ErrorKind
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewValidationError(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

func NewNotFoundError(message string) *Error {
	return &Error{Kind: KindNotFound, Field: "resource", Message: message}
}

func NewUnauthorizedError(message string, cause error) *Error {
	return &Error{Kind: KindUnauthorized, Field: "auth", Message: message, Err: cause}
}

func NewForbiddenError(message string) *Error {
	return &Error{Kind: KindForbidden, Field: "auth", Message: message}
}

func NewConflictError(field, message string, cause error) *Error {
	return &Error{Kind: KindConflict, Field: field, Message: message, Err: cause}
}

func NewInternalError(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Field: "server", Message: message, Err: cause}
}

// KindOf reports the kind of err, KindInternal for foreign errors.
func KindOf(err error) ErrorKind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}

	return KindInternal
}
