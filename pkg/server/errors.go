package server

import (
	"net/http"

	"mercator-hq/eventgate/pkg/proxy"
	"mercator-hq/eventgate/pkg/proxy/types"
)

func writeNotFound(w http.ResponseWriter, _ *http.Request) {
	_ = proxy.WriteErrorResponse(w, types.NewErrorResponse(http.StatusNotFound, "Resource not found."))
}

func writeMethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	_ = proxy.WriteErrorResponse(w, types.NewErrorResponse(http.StatusMethodNotAllowed, "Method not allowed."))
}
