package api

import "fmt"

// ErrorType categorizes an API error for clients and for HTTP status
// mapping.
type ErrorType string

const (
	ErrorTypeServerError     ErrorType = "server_error"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeModelError      ErrorType = "model_error"
	ErrorTypeTooManyRequests ErrorType = "too_many_requests"
)

// APIError is the structured error carried in error responses. Param
// names the offending request field when one applies.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
}

func (e *APIError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
}

// ErrorResponse is the top-level JSON envelope for a failed request.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// ResponseError is the error payload embedded in a failed Response.
// Code is a stable machine-readable identifier; Message is user-safe
// text. Raw backend error text never appears here (see the engine's
// sanitizer).
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewInvalidRequestError reports a bad request field.
func NewInvalidRequestError(param, message string) *APIError {
	return &APIError{Type: ErrorTypeInvalidRequest, Param: param, Message: message}
}

// NewNotFoundError reports a missing resource.
func NewNotFoundError(message string) *APIError {
	return &APIError{Type: ErrorTypeNotFound, Message: message}
}

// NewServerError reports an internal failure.
func NewServerError(message string) *APIError {
	return &APIError{Type: ErrorTypeServerError, Message: message}
}

// NewModelError reports a backend model failure.
func NewModelError(message string) *APIError {
	return &APIError{Type: ErrorTypeModelError, Message: message}
}

// NewTooManyRequestsError reports a rate limit rejection.
func NewTooManyRequestsError(message string) *APIError {
	return &APIError{Type: ErrorTypeTooManyRequests, Message: message}
}
