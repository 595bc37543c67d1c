package providers

import (
	"context"
	"net/http"
)

// Call is one prepared upstream request.
type Call struct {
	// Method defaults to POST.
	Method string

	// URL is the complete upstream URL including the query string.
	URL string

	// Header carries the provider auth header and any content headers.
	Header http.Header

	// Body is the request body, nil for GET and DELETE.
	Body []byte

	// Dialect labels metrics and spans.
	Dialect string

	// Metering identifiers.
	APIKey    string
	EventID   string
	CatalogID string
}

func (c *Call) method() string {
	if c.Method == "" {
		return http.MethodPost
	}
	return c.Method
}

// Response is a buffered upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// ContentType returns the upstream content type.
func (r *Response) ContentType() string {
	return r.Header.Get("Content-Type")
}

// Meter records one usage row per forwarded call.
type Meter interface {
	Record(ctx context.Context, apiKey, eventID, catalogID string, body []byte) error
}

// StreamEncoder re-encodes a streamed upstream body. Encode is called with
// each chunk as read and may hold back an incomplete tail until the next
// call; Close returns whatever remains at end of stream. An encoder is used
// by a single stream and need not be safe for concurrent use.
type StreamEncoder interface {
	ContentType() string
	Encode(chunk []byte) ([]byte, error)
	Close() ([]byte, error)
}
