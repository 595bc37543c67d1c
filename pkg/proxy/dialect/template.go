// Package dialect describes the inbound API surfaces the gateway accepts as
// a table of templates.
//
// A Template says where a dialect finds the target deployment name and the
// requested max tokens, how the upstream URL and auth header are built, and
// how bodies are re-encoded when the dialect differs from the upstream
// shape. One generic pipeline in the handlers package executes every
// template; no dialect carries its own copy of the forwarding logic.
package dialect

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"mercator-hq/eventgate/pkg/gateway"
	"mercator-hq/eventgate/pkg/providers"
)

// AuthScheme selects how the deployment secret is sent upstream.
type AuthScheme int

const (
	// AuthAPIKey sends "api-key: <secret>".
	AuthAPIKey AuthScheme = iota

	// AuthBearer sends "Authorization: Bearer <secret>".
	AuthBearer
)

// Request is the inbound call as seen by a template.
type Request struct {
	Method string

	// Name is the deployment or index name taken from the route, if the
	// route carries one.
	Name string

	// Operation is the upstream path suffix selected by the route, such as
	// "chat/completions" or "assistants/asst_1/files".
	Operation string

	// Body is the raw inbound body; empty for GET and DELETE.
	Body []byte

	// Query is the inbound query string with empty values removed.
	Query url.Values
}

// Parsed holds the request-level policy fields of an inbound body.
type Parsed struct {
	Stream       bool
	MaxTokens    int
	HasMaxTokens bool
	Target       string
}

// Template is one dialect.
type Template struct {
	Name string

	// Target returns the deployment name the caller addresses.
	Target func(req *Request) (string, error)

	// MaxTokensPath is the gjson path of the requested max tokens, empty
	// when the dialect has none.
	MaxTokensPath string

	// APIVersion is appended as api-version when the caller sent none.
	APIVersion string

	// RequireAPIVersion rejects calls without an api-version parameter.
	RequireAPIVersion bool

	Auth AuthScheme

	// BuildURL returns the upstream URL without its query string.
	BuildURL func(d *gateway.Deployment, req *Request) string

	// TransformRequest rewrites the body for the upstream. Nil forwards the
	// body unchanged.
	TransformRequest func(d *gateway.Deployment, req *Request, p *Parsed) ([]byte, error)

	// TransformResponse rewrites a successful buffered response. Nil
	// forwards it unchanged.
	TransformResponse func(p *Parsed, body []byte) ([]byte, string, error)

	// NewStreamEncoder returns the re-encoder for streamed responses. Nil
	// copies the upstream stream unchanged.
	NewStreamEncoder func(p *Parsed) providers.StreamEncoder
}

// Parse validates the body and extracts the policy fields. stream counts
// only when it is a JSON boolean; any other value is treated as false.
func (t *Template) Parse(req *Request) (*Parsed, error) {
	if len(req.Body) > 0 && !gjson.ValidBytes(req.Body) {
		return nil, gateway.InvalidRequest("The request body is not valid JSON.")
	}
	if t.RequireAPIVersion && req.Query.Get("api-version") == "" {
		return nil, gateway.InvalidRequest("The api-version query parameter is required.")
	}

	p := &Parsed{
		Stream: gjson.GetBytes(req.Body, "stream").Type == gjson.True,
	}

	if t.MaxTokensPath != "" {
		mt := gjson.GetBytes(req.Body, t.MaxTokensPath)
		if mt.Type == gjson.Number {
			p.MaxTokens = int(mt.Int())
			p.HasMaxTokens = true
		}
	}

	target, err := t.Target(req)
	if err != nil {
		return nil, err
	}
	p.Target = target
	return p, nil
}

// CheckTokenCap rejects a requested max tokens above the context's cap.
func CheckTokenCap(rc *gateway.RequestContext, p *Parsed) error {
	if p.HasMaxTokens && rc.ExceedsTokenCap(p.MaxTokens) {
		return gateway.InvalidRequest("max_tokens exceeds the event max token cap of %d", rc.MaxTokenCap)
	}
	return nil
}

// UpstreamURL builds the full upstream URL including the query string.
func (t *Template) UpstreamURL(d *gateway.Deployment, req *Request) string {
	q := url.Values{}
	for k, v := range req.Query {
		q[k] = v
	}
	if t.APIVersion != "" && q.Get("api-version") == "" {
		q.Set("api-version", t.APIVersion)
	}

	u := t.BuildURL(d, req)
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

// Header returns the upstream auth header for d. The caller's own
// credential is never forwarded.
func (t *Template) Header(d *gateway.Deployment) http.Header {
	h := http.Header{}
	switch t.Auth {
	case AuthBearer:
		h.Set("Authorization", "Bearer "+d.EndpointKey)
	default:
		h.Set("api-key", d.EndpointKey)
	}
	return h
}

func pathName(req *Request) (string, error) {
	if req.Name == "" {
		return "", gateway.InvalidRequest("The deployment name is required.")
	}
	return req.Name, nil
}

func bodyModel(req *Request) (string, error) {
	model := gjson.GetBytes(req.Body, "model")
	if model.Type != gjson.String || strings.TrimSpace(model.Str) == "" {
		return "", gateway.InvalidRequest("The model field is required.")
	}
	return model.Str, nil
}

func joinURL(base string, parts ...string) string {
	u := strings.TrimRight(base, "/")
	for _, p := range parts {
		u += "/" + strings.Trim(p, "/")
	}
	return u
}
