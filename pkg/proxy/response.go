package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"

	"mercator-hq/eventgate/pkg/proxy/types"
)

// WriteJSONResponse writes a JSON response to the HTTP response writer.
// It sets the appropriate content-type header and handles marshaling errors.
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON response: %w", err)
	}

	return nil
}

// WriteErrorResponse writes the uniform error body with its status code.
func WriteErrorResponse(w http.ResponseWriter, errResp *types.ErrorResponse) error {
	statusCode := errResp.HTTPStatusCode()
	errResp.Code = statusCode
	return WriteJSONResponse(w, statusCode, errResp)
}

// WriteRaw writes an upstream body unchanged with the given content type.
func WriteRaw(w http.ResponseWriter, statusCode int, contentType string, body []byte) error {
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.WriteHeader(statusCode)
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("failed to write response body: %w", err)
	}
	return nil
}
