// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/core-ledger/internal/shared"
)

// ErrorBody is the JSON error envelope returned to clients. Field, ResourceType
// and Code are only present for the error class that carries them.
type ErrorBody struct {
	Error        string `json:"error"`
	Message      string `json:"message"`
	Field        string `json:"field,omitempty"`
	ResourceType string `json:"resourceType,omitempty"`
	Code         string `json:"code,omitempty"`
}

// StatusFor reports the HTTP status used for err.
func StatusFor(err error) int {
	var (
		validationErr *shared.ValidationError
		notFoundErr   *shared.NotFoundError
		businessErr   *shared.BusinessError
	)
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &notFoundErr), errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &businessErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, shared.ErrMissingTenant), errors.Is(err, shared.ErrMissingUser):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses. Unknown errors never
// leak their message.
func RespondError(w http.ResponseWriter, err error) {
	var (
		validationErr *shared.ValidationError
		notFoundErr   *shared.NotFoundError
		businessErr   *shared.BusinessError
	)
	switch {
	case errors.As(err, &validationErr):
		JSON(w, http.StatusBadRequest, ErrorBody{Error: "Bad Request", Message: validationErr.Message, Field: validationErr.Field})
	case errors.As(err, &notFoundErr):
		JSON(w, http.StatusNotFound, ErrorBody{Error: "Not Found", Message: notFoundErr.Message, ResourceType: notFoundErr.Resource})
	case errors.As(err, &businessErr):
		JSON(w, http.StatusUnprocessableEntity, ErrorBody{Error: "Business Rule Violation", Message: businessErr.Message, Code: businessErr.Code})
	case errors.Is(err, shared.ErrMissingTenant), errors.Is(err, shared.ErrMissingUser):
		JSON(w, http.StatusUnauthorized, ErrorBody{Error: "Unauthorized", Message: err.Error()})
	default:
		JSON(w, http.StatusInternalServerError, ErrorBody{Error: "Internal Server Error", Message: shared.UserSafeMessage(err)})
	}
}

// BadRequest writes a 400 error body for malformed input.
func BadRequest(w http.ResponseWriter, message, field string) {
	JSON(w, http.StatusBadRequest, ErrorBody{Error: "Bad Request", Message: message, Field: field})
}
