package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/farelane/dispatch/backend/internal/domain"
)

// errorResponse is the JSON error body every endpoint uses:
// {"error":{"code":"...","message":"..."}}.
type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON writes v with the given status. Encoding failures are logged;
// by then the status line is already on the wire, so there is nothing else
// to do for this request.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError writes the standard error body.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorDetail{Code: code, Message: message}})
}

// writeServiceError maps a service-layer error to its HTTP representation.
// Every domain sentinel gets a distinct machine-readable code because the
// passenger and driver UIs react differently: Expired prompts a renewal,
// Mismatch shows a hard error, TooManyAttempts shows a cooldown.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrTripNotEligible):
		writeError(w, http.StatusConflict, "trip_not_eligible", "trip is not awaiting a start code")
	case errors.Is(err, domain.ErrAlreadyIssued):
		writeError(w, http.StatusConflict, "already_issued", "a start code already exists for this trip; renew it instead")
	case errors.Is(err, domain.ErrNoActiveAuthorization):
		writeError(w, http.StatusNotFound, "no_active_authorization", "no active start code for this trip")
	case errors.Is(err, domain.ErrAlreadyConsumed):
		writeError(w, http.StatusConflict, "already_consumed", "this start code has already been used")
	case errors.Is(err, domain.ErrExpired):
		writeError(w, http.StatusGone, "expired", "this start code has expired; ask the passenger to renew it")
	case errors.Is(err, domain.ErrMismatch):
		writeError(w, http.StatusConflict, "code_mismatch", "the presented code does not match")
	case errors.Is(err, domain.ErrMalformedToken):
		writeError(w, http.StatusUnprocessableEntity, "malformed_token", "the presented QR token could not be decoded")
	case errors.Is(err, domain.ErrTooManyAttempts):
		writeError(w, http.StatusTooManyRequests, "too_many_attempts", "too many verification attempts; try again later")
	case errors.Is(err, domain.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "temporarily unavailable; retry shortly")
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "invalid request")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "trip not found")
	default:
		slog.Error("unhandled service error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
