// Package apperr defines the error taxonomy shared by the entitlement workflows.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers deciding how to surface it.
type Kind int

// Error kinds.
const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindStateConflict
	KindTransient
	KindConfiguration
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindStateConflict:
		return "state_conflict"
	case KindTransient:
		return "transient"
	case KindConfiguration:
		return "configuration"
	default:
		return "internal"
	}
}

// Stable error codes reported to clients.
const (
	CodeInvalidFormat    = "invalid_format"
	CodeInvalidInput     = "invalid_input"
	CodeNotFound         = "not_found"
	CodeInactive         = "inactive"
	CodeExpired          = "expired"
	CodeLimitReached     = "limit_reached"
	CodeNoCards          = "no_cards"
	CodePackageNotFound  = "package_not_found"
	CodePackageInactive  = "package_inactive"
	CodeAlreadyOwned     = "already_owned"
	CodePurchaseNotFound = "purchase_not_found"
	CodeAmountMismatch   = "amount_mismatch"
	CodePromoInUse       = "promo_in_use"
	CodeConflict         = "conflict"
	CodeTransient        = "transient"
)

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches another *Error by code so sentinel comparisons work with errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) || e == nil || other == nil {
		return false
	}
	return e.Code == other.Code && other.Err == nil
}

// New builds an error of the given kind.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap builds an error of the given kind around cause.
func Wrap(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: cause}
}

// Validation returns a validation error.
func Validation(code, message string) *Error { return New(KindValidation, code, message) }

// NotFound returns a not-found error.
func NotFound(code, message string) *Error { return New(KindNotFound, code, message) }

// Conflict returns a state-conflict error.
func Conflict(code, message string) *Error { return New(KindStateConflict, code, message) }

// Configuration returns a configuration error.
func Configuration(code, message string) *Error { return New(KindConfiguration, code, message) }

// Transient wraps a retryable infrastructure failure.
func Transient(cause error) *Error {
	return Wrap(KindTransient, CodeTransient, "temporary failure, try again", cause)
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) && appErr != nil {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of err, KindInternal when it is not classified.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

// CodeOf returns the code of err, empty when it is not classified.
func CodeOf(err error) string {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ""
}
