package api

import (
	"errors"
	"net/http"

	"github.com/jobdeck/jobdeck-api/internal/api/shared"
	"github.com/jobdeck/jobdeck-api/internal/domain"
	"github.com/jobdeck/jobdeck-api/internal/service/auth"
	"github.com/jobdeck/jobdeck-api/internal/store"
	"github.com/jobdeck/jobdeck-api/internal/tracker"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking internal error types to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized

	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden

	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, tracker.ErrTaskFinalized),
		errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidQueueItemURL),
		errors.Is(err, domain.ErrInvalidTaskKind),
		errors.Is(err, domain.ErrInvalidTaskStatus),
		errors.Is(err, domain.ErrResultWithoutFinal),
		errors.Is(err, domain.ErrErrorWithoutFailed):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-safe message for the error.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrMissingToken):
		return "Invalid token"

	case errors.Is(err, domain.ErrUnauthorized):
		return "Operation not permitted"

	case errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, store.ErrQueueItemNotFound):
		return "Extraction not found"

	case errors.Is(err, store.ErrCacheEntryNotFound):
		return "Cache entry not found"

	case errors.Is(err, store.ErrNotFound):
		return "Resource not found"

	case errors.Is(err, tracker.ErrTaskFinalized):
		return "Task has already finished"

	case errors.Is(err, domain.ErrInvalidTransition):
		return "Status transition not allowed"

	case errors.Is(err, domain.ErrInvalidQueueItemURL):
		return "URL must be a valid http(s) address"

	case errors.Is(err, domain.ErrInvalidTaskKind):
		return "Unknown task kind"

	case errors.Is(err, domain.ErrResultWithoutFinal),
		errors.Is(err, domain.ErrErrorWithoutFailed):
		return "Result and error fields do not match the target status"

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID):
		return "Invalid request"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the mapped status and safe message for err, logging
// the underlying cause. An explicit userMessage overrides the derived one.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, userMessage string) {
	status := MapErrorToStatusCode(err)
	if userMessage == "" {
		userMessage = GetSafeErrorMessage(err)
	}
	shared.RespondWithErrorAndLog(w, r, status, userMessage, err)
}
