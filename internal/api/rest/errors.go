package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/streamgov/streamgov-backend/internal/apperr"
	"github.com/streamgov/streamgov-backend/internal/pkg/logger"
)

// APIError is the uniform error body.
type APIError struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// statusFor maps the error taxonomy to HTTP status codes. Invariant, policy,
// staleness and inactive-endpoint failures are the caller's to fix (422);
// unknown ids are 404; everything else is a server-side 500. A policy-config
// error only escapes the engine in fail-closed mode, where a broken ACTIVE
// policy is an operator problem, so it lands in the 500 bucket.
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindInvariant, apperr.KindPolicyViolation,
		apperr.KindStale, apperr.KindInactive:
		return http.StatusUnprocessableEntity
	case apperr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		// Backend and store errors may carry driver detail; the taxonomy
		// message is user-safe, the cause stays in the logs.
		var e *apperr.Error
		if errors.As(err, &e) {
			message = string(e.Kind) + ": " + e.Message
		} else {
			message = "internal server error"
		}
	}
	respondJSON(w, status, APIError{
		Error:     message,
		Code:      string(apperr.KindOf(err)),
		RequestID: logger.FromContext(r.Context()),
	})
}

func respondInvalid(w http.ResponseWriter, r *http.Request, format string, args ...interface{}) {
	respondError(w, r, apperr.Invariant(format, args...))
}
