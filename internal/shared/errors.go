package shared

import (
	"errors"
	"fmt"
)

// Business error codes surfaced to API clients.
const (
	CodeDuplicateCode     = "DUPLICATE_CODE"
	CodeInvalidReparent   = "INVALID_REPARENT"
	CodeScanAlreadyQueued = "SCAN_ALREADY_QUEUED"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrMissingTenant indicates the caller context lacks a tenant id.
	ErrMissingTenant = errors.New("tenant id required")
	// ErrMissingUser indicates the caller context lacks a user id.
	ErrMissingUser = errors.New("user id required")
)

// ValidationError reports malformed input or a structural rule violation.
// Field is empty when the rule is not tied to a single input field.
type ValidationError struct {
	Message string
	Field   string
}

// NewValidationError builds a ValidationError.
func NewValidationError(message, field string) *ValidationError {
	return &ValidationError{Message: message, Field: field}
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NotFoundError reports a lookup miss for the given resource type.
type NotFoundError struct {
	Message  string
	Resource string
}

// NewNotFoundError builds a NotFoundError.
func NewNotFoundError(message, resource string) *NotFoundError {
	return &NotFoundError{Message: message, Resource: resource}
}

func (e *NotFoundError) Error() string {
	return e.Message
}

// Is lets errors.Is(err, ErrNotFound) match typed lookups.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// BusinessError reports input that is well formed but conflicts with
// persisted state.
type BusinessError struct {
	Message string
	Code    string
}

// NewBusinessError builds a BusinessError.
func NewBusinessError(message, code string) *BusinessError {
	return &BusinessError{Message: message, Code: code}
}

func (e *BusinessError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// UserSafeMessage returns the message that may be shown to API callers.
// Infrastructure failures collapse into a generic sentence.
func UserSafeMessage(err error) string {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Message
	}
	var notFoundErr *NotFoundError
	if errors.As(err, &notFoundErr) {
		return notFoundErr.Message
	}
	var businessErr *BusinessError
	if errors.As(err, &businessErr) {
		return businessErr.Message
	}
	return "an unexpected error occurred"
}
