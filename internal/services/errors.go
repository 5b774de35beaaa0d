package services

import (
	"errors"
	"fmt"

	"github.com/saeid-a/CoachOps/internal/repository"
)

type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindForbidden  ErrorKind = "forbidden"
)

const (
	CodeValidation             = "VALIDATION_FAILED"
	CodeNotFound               = "NOT_FOUND"
	CodeForbidden              = "FORBIDDEN"
	CodeSchedulingConflict     = "SCHEDULING_CONFLICT"
	CodeDuplicateCollaborator  = "DUPLICATE_COLLABORATOR"
	CodeDuplicateSessionLink   = "DUPLICATE_SESSION_LINK"
	CodeSessionAlreadyBilled   = "SESSION_ALREADY_BILLED"
	CodeInvoiceNumberCollision = "INVOICE_NUMBER_COLLISION"
	CodeAlreadyPaid            = "ALREADY_PAID"
	CodePaymentVoid            = "PAYMENT_VOID"
	CodePaymentNotPending      = "PAYMENT_NOT_PENDING"
	CodeInvalidTransition      = "INVALID_STATE_TRANSITION"
	CodeSessionNotCompleted    = "SESSION_NOT_COMPLETED"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
)

// Error is a business-rule failure surfaced to callers as {code, message, details}.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// Is matches sentinels by code when the target carries one, otherwise by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" {
		return e.Code == t.Code
	}
	return e.Kind == t.Kind
}

var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrForbidden  = &Error{Kind: KindForbidden}
	// ErrAlreadyPaid is a conflict: errors.Is matches both it and ErrConflict.
	ErrAlreadyPaid = &Error{Kind: KindConflict, Code: CodeAlreadyPaid}
)

func validationError(code, message string, details map[string]any) *Error {
	if code == "" {
		code = CodeValidation
	}
	return &Error{Kind: KindValidation, Code: code, Message: message, Details: details}
}

func conflictError(code, message string, details map[string]any) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message, Details: details}
}

func forbiddenError(message string) *Error {
	return &Error{Kind: KindForbidden, Code: CodeForbidden, Message: message}
}

func notFoundError(entity, id string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", entity),
		Details: map[string]any{"id": id},
	}
}

// fieldErrors collects per-field validation messages.
type fieldErrors map[string]string

func (f fieldErrors) add(field, message string) {
	f[field] = message
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	details := make(map[string]any, len(f))
	for field, message := range f {
		details[field] = message
	}
	return validationError(CodeValidation, "validation failed", details)
}

// lookupError turns a repository miss into a NotFoundError and passes other
// failures through untouched.
func lookupError(err error, entity, id string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFoundError(entity, id)
	}
	return err
}
