package types

import "net/http"

// ErrorResponse is the uniform error body returned by every route. Code
// always equals the HTTP status of the response.
type ErrorResponse struct {
	// Code mirrors the HTTP status code.
	Code int `json:"code"`

	// Message is a caller-facing description.
	Message string `json:"message"`
}

// NewErrorResponse creates an error response with the given status.
func NewErrorResponse(code int, message string) *ErrorResponse {
	return &ErrorResponse{Code: code, Message: message}
}

// NewServerError creates the generic 500 response.
func NewServerError() *ErrorResponse {
	return NewErrorResponse(http.StatusInternalServerError, "An internal error occurred. Please try again later.")
}

// HTTPStatusCode returns the status the response is written with. Codes
// outside the error range fall back to 500.
func (e *ErrorResponse) HTTPStatusCode() int {
	if e.Code < 400 || e.Code > 599 {
		return http.StatusInternalServerError
	}
	return e.Code
}
