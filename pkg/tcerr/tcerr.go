// Package tcerr defines the typed error taxonomy that core components
// return. Every error that crosses a package boundary in the auth/event
// engine is either a *tcerr.Error or something wrapped into one at the
// boundary; nothing panics on malformed or unauthorized input.
package tcerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the error classes from spec.md §7.
type Kind string

const (
	InvalidSignature        Kind = "InvalidSignature"
	InvalidTime             Kind = "InvalidTime"
	MalformedCredential     Kind = "MalformedCredential"
	UnauthorizedCapability  Kind = "UnauthorizedCapability"
	MissingParents          Kind = "MissingParents"
	ExpiryExceedsParent     Kind = "ExpiryExceedsParent"
	NotBeforePrecedesParent Kind = "NotBeforePrecedesParent"
	UnsupportedSignatureType Kind = "UnsupportedSignatureType"
	SpaceNotFound           Kind = "SpaceNotFound"
	PayloadTooLarge         Kind = "PayloadTooLarge"
	IncorrectHash           Kind = "IncorrectHash"
	BadRequest              Kind = "BadRequest"
	MalformedFacts          Kind = "MalformedFacts"
	ConnectionAcquire       Kind = "ConnectionAcquire"
	BlobStoreError          Kind = "BlobStoreError"
	EncodingError           Kind = "EncodingError"
)

// HTTPStatus implements the §7 error-to-status mapping.
func (k Kind) HTTPStatus() int {
	switch k {
	case InvalidSignature, InvalidTime, MalformedCredential, UnauthorizedCapability,
		MissingParents, ExpiryExceedsParent, NotBeforePrecedesParent, UnsupportedSignatureType:
		return http.StatusUnauthorized
	case SpaceNotFound:
		return http.StatusNotFound
	case PayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case IncorrectHash, BadRequest, MalformedFacts:
		return http.StatusBadRequest
	case ConnectionAcquire, BlobStoreError, EncodingError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Error is the concrete error type returned by core packages.
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	// Resource/Ability are populated for UnauthorizedCapability so callers
	// can report exactly which capability was rejected.
	Resource string
	Ability  string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a *Error with no wrapped cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind to an existing error, preserving it as the cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Unauthorized builds an UnauthorizedCapability error naming the rejected
// (resource, ability) pair.
func Unauthorized(resource, ability string) *Error {
	return &Error{
		Kind:     UnauthorizedCapability,
		Message:  fmt.Sprintf("capability not authorized: %s %s", resource, ability),
		Resource: resource,
		Ability:  ability,
	}
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error, else
// reports EncodingError as a conservative default for unrecognized errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return EncodingError
}
