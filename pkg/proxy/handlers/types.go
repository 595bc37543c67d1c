package handlers

import (
	"context"
	"net/http"

	"mercator-hq/eventgate/pkg/gateway"
	"mercator-hq/eventgate/pkg/providers"
)

// Forwarder executes upstream calls.
type Forwarder interface {
	Post(ctx context.Context, call *providers.Call) (*providers.Response, error)
	PostStreaming(ctx context.Context, call *providers.Call, w http.ResponseWriter, enc providers.StreamEncoder) error
}

// CatalogResolver answers catalog questions for an event.
type CatalogResolver interface {
	Resolve(ctx context.Context, eventID, name string) (*gateway.Deployment, error)
	ResolveByType(ctx context.Context, eventID string, modelType gateway.ModelType) (*gateway.Deployment, error)
	Capabilities(ctx context.Context, eventID string) (gateway.Capabilities, error)
}
