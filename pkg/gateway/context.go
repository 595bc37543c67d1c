package gateway

import (
	"context"
	"encoding/json"
)

// EmptyUsage is recorded when an upstream response carries no usage object.
var EmptyUsage = json.RawMessage("{}")

// RequestContext is the per-request identity and quota state. Each request
// owns its own value; the cached Authorization it is built from is shared.
type RequestContext struct {
	APIKey            string
	UserID            string
	EventID           string
	EventCode         string
	OrganizerName     string
	OrganizerEmail    string
	EventImageURL     string
	MaxTokenCap       int
	DailyRequestCap   int
	RateLimitExceeded bool

	// Set while the dialect adapter processes the request.
	DeploymentName string
	CatalogID      string
	Usage          json.RawMessage
}

// NewRequestContext builds a fresh request context from an authorization
// snapshot.
func NewRequestContext(a *Authorization) *RequestContext {
	return &RequestContext{
		APIKey:            a.APIKey,
		UserID:            a.UserID,
		EventID:           a.EventID,
		EventCode:         a.EventCode,
		OrganizerName:     a.OrganizerName,
		OrganizerEmail:    a.OrganizerEmail,
		EventImageURL:     a.EventImageURL,
		MaxTokenCap:       a.MaxTokenCap,
		DailyRequestCap:   a.DailyRequestCap,
		RateLimitExceeded: a.RateLimitExceeded,
		Usage:             EmptyUsage,
	}
}

// IsAuthorized reports whether the caller may spend quota.
func (rc *RequestContext) IsAuthorized() bool {
	return !rc.RateLimitExceeded
}

// ExceedsTokenCap reports whether maxTokens is above a nonzero event cap.
func (rc *RequestContext) ExceedsTokenCap(maxTokens int) bool {
	return rc.MaxTokenCap > 0 && maxTokens > rc.MaxTokenCap
}

type contextKey struct{}

// NewContext returns a copy of ctx carrying rc.
func NewContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rc)
}

// FromContext returns the request context stored in ctx, if any.
func FromContext(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(contextKey{}).(*RequestContext)
	return rc, ok && rc != nil
}
