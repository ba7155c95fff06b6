package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgerrcode"
	"github.com/kiranshivaraju/newsanalyzer/internal/api/response"
	"github.com/kiranshivaraju/newsanalyzer/internal/jobs"
	"github.com/kiranshivaraju/newsanalyzer/internal/preview"
)

// retryAfterSeconds is advertised on 503 responses for transient failures.
const retryAfterSeconds = 5

// writeError maps service errors onto the v1 error body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, jobs.ErrValidation),
		errors.Is(err, preview.ErrInvalidSelection),
		errors.Is(err, preview.ErrInvalidSession):
		response.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())

	case errors.Is(err, jobs.ErrExpired), errors.Is(err, preview.ErrExpired):
		response.Fail(w, http.StatusGone, response.ErrorBody{
			Code:    http.StatusGone,
			Reason:  "PREVIEW_EXPIRED",
			Message: "The preview has expired, please search again",
			URL:     "/v1/preview",
		})

	case errors.Is(err, jobs.ErrDuplicateSubmission):
		// Clients key on this exact pair.
		response.Fail(w, http.StatusInternalServerError, response.ErrorBody{
			Code:    http.StatusInternalServerError,
			Reason:  "DUPLICATE_SUBMISSION",
			Message: "You have already submitted this request",
			PgxCode: pgerrcode.UniqueViolation,
			URL:     "/v1/job",
		})

	case errors.Is(err, jobs.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found")

	case errors.Is(err, jobs.ErrInvalidTransition):
		response.Error(w, http.StatusConflict, "INVALID_TRANSITION", err.Error())

	case errors.Is(err, jobs.ErrTransient), errors.Is(err, preview.ErrUnavailable):
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		response.Error(w, http.StatusServiceUnavailable, "TEMPORARILY_UNAVAILABLE",
			"The service is temporarily unavailable, please retry")

	default:
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", chimw.GetReqID(r.Context()),
			"error", err,
		)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
	}
}
