package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voicetransl/voicetransl-api/internal/task"
)

func TestMapErrorToStatusCode(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"nil error", nil, http.StatusInternalServerError, "An unexpected error occurred"},
		{"not found", task.ErrTaskNotFound, http.StatusNotFound, "Task not found"},
		{"wrapped not found", fmt.Errorf("lookup: %w", task.ErrTaskNotFound), http.StatusNotFound, "Task not found"},
		{"kind mismatch", ErrKindMismatch, http.StatusNotFound, "Task not found"},
		{"invalid kind", task.ErrInvalidKind, http.StatusBadRequest, "Invalid task type"},
		{"invalid status", task.ErrInvalidStatus, http.StatusBadRequest, "Invalid status"},
		{"invalid input", ErrInvalidInput, http.StatusBadRequest, "Invalid request"},
		{"shutting down", task.ErrShuttingDown, http.StatusServiceUnavailable, "Server is shutting down"},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, "An unexpected error occurred"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.status, MapErrorToStatusCode(tc.err))
			assert.Equal(t, tc.message, GetSafeErrorMessage(tc.err))
		})
	}
}

func TestSanitizeValidationError(t *testing.T) {
	v := validator.New()

	err := v.Struct(TranslationRequest{LRCContent: "[00:01.00]x", TargetLanguage: "de"})
	require.Error(t, err)
	assert.Equal(t, "Invalid TargetLanguage: invalid value", SanitizeValidationError(err))

	err = v.Struct(TranscriptionRequest{})
	require.Error(t, err)
	assert.Equal(t, "Invalid URL: required field", SanitizeValidationError(err))

	assert.Equal(t, "Validation error", SanitizeValidationError(errors.New("something else")))
}
