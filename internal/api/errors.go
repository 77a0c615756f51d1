package api

import (
	"encoding/json"
	"log"
	"net/http"

	apperrors "github.com/ads-sync/internal/errors"
	"github.com/ads-sync/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// Common error codes
const (
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// respondServiceError maps an error from a lower layer onto a response.
// Internal details never leave the process.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	catErr := apperrors.Categorize(err)

	switch catErr.Category {
	case apperrors.CategoryValidation:
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, catErr.Message, catErr.Details)
	case apperrors.CategoryNotFound:
		respondError(w, http.StatusNotFound, ErrCodeNotFound, catErr.Message, catErr.Details)
	default:
		if catErr.StatusCode == http.StatusServiceUnavailable {
			respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, catErr.Message, nil)
			return
		}
		log.Printf("[API] %s %s failed: %v", r.Method, r.URL.Path, err)
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred", nil)
	}
}
