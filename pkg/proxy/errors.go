package proxy

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"mercator-hq/eventgate/pkg/gateway"
	"mercator-hq/eventgate/pkg/proxy/types"
	"mercator-hq/eventgate/pkg/routing"
	"mercator-hq/eventgate/pkg/store"
)

// HandleError converts an error from any gateway layer to the uniform error
// body. Only gateway error messages and not-found listings reach the
// caller; anything else becomes a generic 500.
//
// Example usage:
//
//	if err != nil {
//	    WriteErrorResponse(w, HandleError(err))
//	    return
//	}
func HandleError(err error) *types.ErrorResponse {
	var notFound *routing.DeploymentNotFoundError
	if errors.As(err, &notFound) {
		return types.NewErrorResponse(http.StatusNotFound, notFound.Error())
	}

	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		return types.NewErrorResponse(gwErr.Kind.Status(), gwErr.Message)
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		return types.NewErrorResponse(http.StatusNotFound, "Not found.")
	case errors.Is(err, store.ErrConflict):
		return types.NewErrorResponse(http.StatusConflict, "conflict, please retry")
	case errors.Is(err, context.Canceled):
		return types.NewErrorResponse(http.StatusServiceUnavailable, "The upstream service is unavailable")
	}

	return types.NewServerError()
}

// WriteError logs err and writes its uniform error body. Server-side
// failures are logged at error level with the full cause; caller errors at
// debug.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	resp := HandleError(err)

	level := slog.LevelDebug
	if resp.Code >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.Default().Log(r.Context(), level, "request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"status", resp.Code,
		"error", err,
	)

	if md := MetadataFromContext(r.Context()); md != nil {
		md.Error = err
	}
	_ = WriteErrorResponse(w, resp)
}
