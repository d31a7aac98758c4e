package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/voicetransl/voicetransl-api/internal/api/shared"
	"github.com/voicetransl/voicetransl-api/internal/task"
)

// Errors raised by the handlers themselves.
var (
	// ErrInvalidInput is returned for requests that fail validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrKindMismatch is returned when a kind-scoped route is queried with
	// the id of a task of another kind.
	ErrKindMismatch = errors.New("task kind mismatch")
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking internal error types to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, task.ErrTaskNotFound),
		errors.Is(err, ErrKindMismatch):
		return http.StatusNotFound

	case errors.Is(err, task.ErrInvalidKind),
		errors.Is(err, task.ErrInvalidStatus),
		errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest

	case errors.Is(err, task.ErrShuttingDown):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a user-friendly message for err.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, task.ErrTaskNotFound),
		errors.Is(err, ErrKindMismatch):
		return "Task not found"

	case errors.Is(err, task.ErrInvalidKind):
		return "Invalid task type"

	case errors.Is(err, task.ErrInvalidStatus):
		return "Invalid status"

	case errors.Is(err, ErrInvalidInput):
		return "Invalid request"

	case errors.Is(err, task.ErrShuttingDown):
		return "Server is shutting down"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the response for err. A non-empty message replaces
// the default safe message.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := MapErrorToStatusCode(err)
	if message == "" {
		message = GetSafeErrorMessage(err)
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}

// SanitizeValidationError turns a validator error into a short message
// naming the offending field.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()

	// Example format: "Key: 'TranslationRequest.TargetLanguage' Error:Field validation for 'TargetLanguage' failed on the 'oneof' tag"
	if strings.Contains(errMsg, "Field validation") {
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 3 {
				field := fieldParts[1]
				var tag string
				if len(fieldParts) >= 5 {
					tag = fieldParts[3]
				}
				if tag != "" {
					return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(tag))
				}
				return fmt.Sprintf("Invalid %s", field)
			}
		}
	}

	return "Validation error"
}

func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "url":
		return "invalid URL"
	case "oneof":
		return "invalid value"
	case "max":
		return "too long"
	default:
		return "validation failed"
	}
}
