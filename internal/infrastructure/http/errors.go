package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	ierr "github.com/3tcapital/facturador/internal/errors"
)

// ErrorResponse represents a standardized error response format.
type ErrorResponse struct {
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
}

// WriteError writes a standardized JSON error response.
func WriteError(w http.ResponseWriter, statusCode int, message string, errors []string, log *slog.Logger) {
	if errors == nil {
		errors = []string{}
	}
	WriteJSON(w, statusCode, ErrorResponse{Message: message, Errors: errors}, log)
}

// WriteDomainError maps an error kind to its status code and writes the
// error message with any attached hints.
func WriteDomainError(w http.ResponseWriter, err error, log *slog.Logger) {
	status := ierr.HTTPStatusFromErr(err)
	message := err.Error()
	if status >= http.StatusInternalServerError && !ierr.IsTransport(err) && !ierr.IsAuthority(err) && !ierr.IsTicket(err) {
		if log != nil {
			log.Error("request failed", "error", err)
		}
		message = "internal server error"
	}
	WriteError(w, status, message, ierr.Hints(err), log)
}

// WriteJSON encodes v with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, v any, log *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Status already written; nothing else to send.
		if log != nil {
			log.Error("failed to encode response", "error", err)
		}
	}
}
