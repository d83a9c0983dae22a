// Package httputil writes JSON responses in the envelope shape folio and the
// backend share.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/jrschumacher/folio/internal/logger"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// DataResponse wraps a successful payload.
type DataResponse struct {
	Data any `json:"data"`
}

// WriteError writes a standardized error response
func WriteError(w http.ResponseWriter, status int, message string, logFields ...any) {
	response := ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	}

	writeJSON(w, status, response)

	logFields = append([]any{"status", status, "message", message}, logFields...)
	if status >= http.StatusInternalServerError {
		logger.Error("HTTP error response", logFields...)
	} else {
		logger.Debug("HTTP error response", logFields...)
	}
}

// WriteInternalError writes a generic internal server error and logs err.
func WriteInternalError(w http.ResponseWriter, err error, message string, logFields ...any) {
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   http.StatusText(http.StatusInternalServerError),
		Message: message,
	})

	logFields = append([]any{"error", err, "message", message}, logFields...)
	logger.Error("Internal server error", logFields...)
}

// WriteJSON writes data as-is.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, data)
}

// WriteData writes data inside a {"data": ...} envelope.
func WriteData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, DataResponse{Data: data})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", "error", err)
	}
}
