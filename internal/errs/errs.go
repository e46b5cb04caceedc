// Package errs defines the error taxonomy shared across calltrail.
// Callers classify errors with the Is* helpers rather than matching
// strings, so the HTTP layer can map each class to a status code.
package errs

import (
	"errors"
	"fmt"
)

// AuthenticationError indicates a webhook delivery failed signature
// verification, or the verification key is not configured.
type AuthenticationError struct {
	Msg string
}

func (e *AuthenticationError) Error() string { return e.Msg }

// Authenticationf builds an AuthenticationError.
func Authenticationf(format string, args ...any) error {
	return &AuthenticationError{Msg: fmt.Sprintf(format, args...)}
}

// IsAuthentication reports whether err is an AuthenticationError.
func IsAuthentication(err error) bool {
	var e *AuthenticationError
	return errors.As(err, &e)
}

// ConfigurationError indicates a required provider credential or setting
// is missing. Surfaced to clients as a precondition failure.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return e.Msg }

// Configurationf builds a ConfigurationError.
func Configurationf(format string, args ...any) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// IsConfiguration reports whether err is a ConfigurationError.
func IsConfiguration(err error) bool {
	var e *ConfigurationError
	return errors.As(err, &e)
}

// NotFoundError indicates a referenced resource does not exist or is
// outside the caller's org scope. The two cases are deliberately
// indistinguishable so scoped lookups never leak cross-tenant existence.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// NotFound builds a NotFoundError for the given resource and id.
func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// ConflictError indicates a unique-constraint violation on an idempotency
// key. It is recovered locally ("duplicate, already accepted") and never
// surfaced to webhook callers.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

// Conflictf builds a ConflictError.
func Conflictf(format string, args ...any) error {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var e *ConflictError
	return errors.As(err, &e)
}

// ValidationError indicates a request failed an input precondition, such
// as a fax send without a media URL.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}
