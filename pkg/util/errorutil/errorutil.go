package errorutil

import (
	"errors"
	"fmt"
)

// Kind groups domain errors by how callers must react to them.
type Kind string

const (
	KindValidation       Kind = "VALIDATION"
	KindNotFound         Kind = "NOT_FOUND"
	KindConflict         Kind = "CONFLICT"
	KindStoreUnavailable Kind = "STORE_UNAVAILABLE"
	KindDeliveryFailure  Kind = "DELIVERY_FAILURE"
	KindUnauthorized     Kind = "UNAUTHORIZED"
	KindForbidden        Kind = "FORBIDDEN"
	KindInternal         Kind = "INTERNAL"
)

// Error codes surfaced to callers.
const (
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeNotFound         = "NOT_FOUND"
	CodeDuplicateRequest = "DUPLICATE_REQUEST"
	CodeDuplicateUser    = "DUPLICATE_USER"
	CodeAlreadyProcessed = "ALREADY_PROCESSED"
	CodeInvalidStatus    = "INVALID_STATUS"
	CodeConflict         = "CONFLICT"
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeDeliveryFailed   = "DELIVERY_FAILED"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeInternal         = "INTERNAL_ERROR"
)

// DomainError standardizes application errors. It carries no transport concerns;
// the HTTP layer derives a status from Kind.
type DomainError struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(kind Kind, code, message string, details map[string]any) *DomainError {
	return &DomainError{Kind: kind, Code: code, Message: message, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(KindValidation, CodeValidationFailed, message, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return NewDomainError(KindNotFound, CodeNotFound, fmt.Sprintf("%s not found", resource), details)
}

func NewConflict(code, message string, details map[string]any) error {
	if code == "" {
		code = CodeConflict
	}
	return NewDomainError(KindConflict, code, message, details)
}

func NewUnauthorized(message string) error {
	return NewDomainError(KindUnauthorized, CodeUnauthorized, message, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(KindForbidden, CodeForbidden, message, nil)
}

// NewStoreUnavailable wraps a transient persistence failure that survived the retrier.
func NewStoreUnavailable(err error) error {
	return &DomainError{
		Kind:    KindStoreUnavailable,
		Code:    CodeStoreUnavailable,
		Message: "store unavailable",
		Err:     err,
	}
}

// NewDeliveryFailure wraps a push/notification delivery failure. These never reach
// the caller of a business operation; they only feed logs and metrics.
func NewDeliveryFailure(err error, details map[string]any) error {
	return &DomainError{
		Kind:    KindDeliveryFailure,
		Code:    CodeDeliveryFailed,
		Message: "notification delivery failed",
		Details: details,
		Err:     err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Kind:    KindInternal,
		Code:    CodeInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Kind:    KindInternal,
		Code:    CodeInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// KindOf reports the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return ToDomainError(err).Kind
}

// HasCode reports whether err is a DomainError with the given code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}
