package transport

import (
	"encoding/json"
	"net/http"

	"github.com/dirigent-dev/dirigent/pkg/api"
)

// HTTPStatusFromError maps an APIError type to its HTTP status code.
// Pure transport failures (body too large, bad content type, wrong
// method) never reach this; the HTTP adapter answers those directly.
func HTTPStatusFromError(err *api.APIError) int {
	switch err.Type {
	case api.ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case api.ErrorTypeNotFound:
		return http.StatusNotFound
	case api.ErrorTypeTooManyRequests:
		return http.StatusTooManyRequests
	}
	// Server errors, model errors, and anything unrecognized.
	return http.StatusInternalServerError
}

// WriteErrorResponse writes the error in the ErrorResponse wrapper
// format with the given status code.
func WriteErrorResponse(w http.ResponseWriter, apiErr *api.APIError, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: apiErr})
}

// WriteAPIError writes the error with a status derived from its type.
func WriteAPIError(w http.ResponseWriter, apiErr *api.APIError) {
	WriteErrorResponse(w, apiErr, HTTPStatusFromError(apiErr))
}
