package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/address-registry/internal/errors"
	"github.com/address-registry/internal/logging"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{
		Success: false,
		Message: message,
	})
}

// respondServiceError maps a service error to a response. Caller mistakes
// keep their own message; anything else is reported with fallback.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	catErr := apperrors.Categorize(err)
	if apperrors.IsUserError(catErr) {
		respondError(w, catErr.StatusCode, catErr.Message)
		return
	}

	logging.FromContext(r.Context()).WithError(err).Error(fallback)
	respondError(w, http.StatusInternalServerError, fallback)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data) // nolint:errcheck // client went away
	}
}

// parseJSONBody parses JSON request body. Unknown fields are ignored.
func parseJSONBody(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// Response messages
const (
	MsgInvalidBody   = "Invalid request body"
	MsgInvalidID     = "Invalid address id"
	MsgSubmitted     = "Address submitted successfully"
	MsgDeleted       = "Address deleted successfully"
	MsgSaveFailed    = "Error saving address"
	MsgFetchFailed   = "Error fetching addresses"
	MsgCountFailed   = "Error counting addresses"
	MsgDeleteFailed  = "Error deleting address"
	MsgInternalError = "Internal server error"
)
