package logging

import (
	"context"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	eventIDKey   contextKey = "event_id"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithEventID adds the caller's event ID to the context.
func WithEventID(ctx context.Context, eventID string) context.Context {
	return context.WithValue(ctx, eventIDKey, eventID)
}

// EventID retrieves the event ID from the context.
func EventID(ctx context.Context) string {
	id, _ := ctx.Value(eventIDKey).(string)
	return id
}

// contextAttrs returns the log attributes carried by ctx.
func contextAttrs(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	var fields []any
	if id := RequestID(ctx); id != "" {
		fields = append(fields, "request_id", id)
	}
	if id := EventID(ctx); id != "" {
		fields = append(fields, "event_id", id)
	}
	return fields
}
