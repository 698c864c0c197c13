package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kalambet/podium/internal/contentsync"
	"github.com/kalambet/podium/internal/feedback"
	"github.com/kalambet/podium/internal/importer"
	"github.com/kalambet/podium/internal/presentation"
	"github.com/kalambet/podium/internal/ratelimit"
	"github.com/kalambet/podium/internal/storage"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to status codes. what names the failed
// operation for unexpected errors.
func writeError(w http.ResponseWriter, err error, what string) {
	var verr *feedback.ValidationError
	var genErr *contentsync.GenerationError
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, contentsync.ErrPresentationGone):
		httpError(w, http.StatusNotFound, "not_found", "presentation not found")
	case errors.As(err, &verr):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s", verr.Error())
	case errors.Is(err, presentation.ErrInvalidDraft):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, feedback.ErrFeedbackDisabled):
		httpError(w, http.StatusForbidden, "permission_error", "%v", err)
	case errors.Is(err, ratelimit.ErrRateLimited):
		httpError(w, http.StatusTooManyRequests, "rate_limit_error", "%v", err)
	case errors.Is(err, feedback.ErrPassInProgress), errors.Is(err, storage.ErrConflict):
		httpError(w, http.StatusConflict, "conflict_error", "%v", err)
	case errors.Is(err, presentation.ErrGenerationUnavailable):
		httpError(w, http.StatusServiceUnavailable, "api_error", "%v", err)
	case errors.Is(err, importer.ErrEmpty):
		httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "%v", err)
	case errors.As(err, &genErr), errors.Is(err, presentation.ErrGenerationFailed):
		httpError(w, http.StatusBadGateway, "api_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "failed to %s: %v", what, err)
	}
}
