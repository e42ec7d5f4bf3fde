package openaicompat

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/dirigent-dev/dirigent/pkg/api"
)

// MapHTTPError turns a non-2xx backend response into an APIError,
// preferring the message from the backend's error body when one parses.
func MapHTTPError(resp *http.Response) *api.APIError {
	message := backendErrorMessage(resp.Body)

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return api.NewInvalidRequestError("", fallback(message, "invalid request to backend"))
	case http.StatusUnauthorized, http.StatusForbidden:
		// Backend credentials are the gateway's problem, not the caller's.
		return api.NewServerError(fallback(message, "backend authentication failed"))
	case http.StatusNotFound:
		return api.NewNotFoundError(fallback(message, "backend resource not found"))
	case http.StatusTooManyRequests:
		return api.NewTooManyRequestsError(fallback(message, "backend rate limit exceeded"))
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return api.NewServerError(fallback(message, fmt.Sprintf("backend server error (HTTP %d)", resp.StatusCode)))
	}
	return api.NewServerError(fallback(message, fmt.Sprintf("unexpected backend error (HTTP %d)", resp.StatusCode)))
}

// MapNetworkError wraps a transport-level failure (connection refused,
// timeout, DNS) as a server error.
func MapNetworkError(err error) *api.APIError {
	return api.NewServerError("backend connection error: " + err.Error())
}

func fallback(message, def string) string {
	if message == "" {
		return def
	}
	return message
}

// backendErrorMessage parses up to 4 KiB of the body as a
// ChatErrorResponse and returns its message, or "" when nothing usable
// is there.
func backendErrorMessage(body io.Reader) string {
	if body == nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}

	var parsed ChatErrorResponse
	if json.Unmarshal(data, &parsed) != nil {
		return ""
	}
	return parsed.Error.Message
}
