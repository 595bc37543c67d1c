package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"mercator-hq/eventgate/pkg/gateway"
	"mercator-hq/eventgate/pkg/providers"
	"mercator-hq/eventgate/pkg/proxy"
	"mercator-hq/eventgate/pkg/proxy/dialect"
)

// AzureOpenAIOperations are the operations accepted under
// /openai/deployments/{deployment}/.
var AzureOpenAIOperations = []string{
	"chat/completions",
	"extensions/chat/completions",
	"completions",
	"embeddings",
	"images/generations",
}

// ProxyHandler runs the dialect pipeline: parse, token cap check, resolve,
// build the upstream call, forward.
type ProxyHandler struct {
	templates    *dialect.Registry
	resolver     CatalogResolver
	forwarder    Forwarder
	maxBodyBytes int64
	logger       *slog.Logger
}

// NewProxyHandler creates the dialect pipeline.
func NewProxyHandler(templates *dialect.Registry, resolver CatalogResolver, forwarder Forwarder, maxBodyBytes int64) *ProxyHandler {
	return &ProxyHandler{
		templates:    templates,
		resolver:     resolver,
		forwarder:    forwarder,
		maxBodyBytes: maxBodyBytes,
		logger:       slog.Default().With("component", "proxy"),
	}
}

// AzureOpenAI handles POST /openai/deployments/{deployment}/*.
func (h *ProxyHandler) AzureOpenAI(w http.ResponseWriter, r *http.Request) {
	op := strings.Trim(chi.URLParam(r, "*"), "/")
	if !isAzureOperation(op) {
		proxy.WriteError(w, r, gateway.NotFound(fmt.Sprintf("The operation %q is not supported.", op)))
		return
	}
	h.serve(w, r, dialect.AzureOpenAI, &dialect.Request{
		Name:      chi.URLParam(r, "deployment"),
		Operation: op,
	})
}

// OpenAI returns the handler of one generic OpenAI route.
func (h *ProxyHandler) OpenAI(op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.serve(w, r, dialect.OpenAI, &dialect.Request{Operation: op})
	}
}

// Inference returns the handler of one Azure AI inference route.
func (h *ProxyHandler) Inference(op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.serve(w, r, dialect.AzureAIInference, &dialect.Request{Operation: op})
	}
}

// Search handles POST /indexes/{index}/docs/search.
func (h *ProxyHandler) Search(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, dialect.AzureAISearch, &dialect.Request{
		Name:      chi.URLParam(r, "index"),
		Operation: "docs/search",
	})
}

// SearchOData handles POST /indexes('{index}')/docs/search.post.search.
func (h *ProxyHandler) SearchOData(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, dialect.AzureAISearch, &dialect.Request{
		Name:      strings.Trim(chi.URLParam(r, "index"), "'"),
		Operation: dialect.SearchODataOperation,
	})
}

// OllamaChat handles POST /api/chat.
func (h *ProxyHandler) OllamaChat(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, dialect.Ollama, &dialect.Request{})
}

// OllamaTags handles GET /api/tags by listing the event's chat deployments.
func (h *ProxyHandler) OllamaTags(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	proxy.SetDialect(ctx, dialect.Ollama)

	rc, ok := gateway.FromContext(ctx)
	if !ok {
		proxy.WriteError(w, r, gateway.Unauthenticated("Missing API key."))
		return
	}
	caps, err := h.resolver.Capabilities(ctx, rc.EventID)
	if err != nil {
		proxy.WriteError(w, r, err)
		return
	}
	if err := proxy.WriteJSONResponse(w, http.StatusOK, dialect.Tags(caps[gateway.ModelTypeChat])); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// OllamaPing answers the liveness probe Ollama clients send to "/".
func OllamaPing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write([]byte("Ollama is running"))
	}
}

func (h *ProxyHandler) serve(w http.ResponseWriter, r *http.Request, name string, req *dialect.Request) {
	ctx := r.Context()
	proxy.SetDialect(ctx, name)

	rc, ok := gateway.FromContext(ctx)
	if !ok {
		proxy.WriteError(w, r, gateway.Unauthenticated("Missing API key."))
		return
	}
	tpl := h.templates.Get(name)

	body, err := proxy.ReadBody(r, h.maxBodyBytes)
	if err != nil {
		proxy.WriteError(w, r, err)
		return
	}
	req.Method = r.Method
	req.Body = body
	req.Query = proxy.ForwardQuery(r.URL.Query())

	parsed, err := tpl.Parse(req)
	if err != nil {
		proxy.WriteError(w, r, err)
		return
	}
	if err := dialect.CheckTokenCap(rc, parsed); err != nil {
		proxy.WriteError(w, r, err)
		return
	}

	d, err := h.resolver.Resolve(ctx, rc.EventID, parsed.Target)
	if err != nil {
		proxy.WriteError(w, r, err)
		return
	}

	if parsed.Stream {
		if err := h.stream(w, r, rc, tpl, req, parsed, d); err != nil {
			proxy.WriteError(w, r, err)
		}
		return
	}

	resp, err := h.call(r, rc, tpl, req, parsed, d, nil)
	if err != nil {
		proxy.WriteError(w, r, err)
		return
	}
	h.writeUpstream(w, r, tpl, parsed, resp)
}

// prepare builds the upstream call for d and records the selection on the
// request context and metadata.
func (h *ProxyHandler) prepare(r *http.Request, rc *gateway.RequestContext, tpl *dialect.Template, req *dialect.Request, parsed *dialect.Parsed, d *gateway.Deployment, extra http.Header) (*providers.Call, error) {
	rc.DeploymentName = d.DeploymentName
	rc.CatalogID = d.CatalogID
	if md := proxy.MetadataFromContext(r.Context()); md != nil {
		md.DeploymentName = d.DeploymentName
		md.CatalogID = d.CatalogID
		md.Streamed = parsed.Stream
	}

	body := req.Body
	if tpl.TransformRequest != nil && len(body) > 0 {
		var err error
		if body, err = tpl.TransformRequest(d, req, parsed); err != nil {
			return nil, err
		}
	}

	header := tpl.Header(d)
	for k, v := range extra {
		header[k] = v
	}

	return &providers.Call{
		Method:    req.Method,
		URL:       tpl.UpstreamURL(d, req),
		Header:    header,
		Body:      body,
		Dialect:   tpl.Name,
		APIKey:    rc.APIKey,
		EventID:   rc.EventID,
		CatalogID: d.CatalogID,
	}, nil
}

func (h *ProxyHandler) call(r *http.Request, rc *gateway.RequestContext, tpl *dialect.Template, req *dialect.Request, parsed *dialect.Parsed, d *gateway.Deployment, extra http.Header) (*providers.Response, error) {
	call, err := h.prepare(r, rc, tpl, req, parsed, d, extra)
	if err != nil {
		return nil, err
	}

	resp, err := h.forwarder.Post(r.Context(), call)
	if err != nil {
		return nil, err
	}
	if md := proxy.MetadataFromContext(r.Context()); md != nil {
		md.UpstreamStatus = resp.StatusCode
	}
	return resp, nil
}

func (h *ProxyHandler) stream(w http.ResponseWriter, r *http.Request, rc *gateway.RequestContext, tpl *dialect.Template, req *dialect.Request, parsed *dialect.Parsed, d *gateway.Deployment) error {
	call, err := h.prepare(r, rc, tpl, req, parsed, d, nil)
	if err != nil {
		return err
	}

	var enc providers.StreamEncoder
	if tpl.NewStreamEncoder != nil {
		enc = tpl.NewStreamEncoder(parsed)
	}
	return h.forwarder.PostStreaming(r.Context(), call, w, enc)
}

// writeUpstream relays a buffered upstream response, re-encoding successful
// bodies for dialects whose response shape differs from the upstream.
func (h *ProxyHandler) writeUpstream(w http.ResponseWriter, r *http.Request, tpl *dialect.Template, parsed *dialect.Parsed, resp *providers.Response) {
	body, contentType := resp.Body, resp.ContentType()
	if tpl.TransformResponse != nil && resp.StatusCode < http.StatusBadRequest {
		var err error
		body, contentType, err = tpl.TransformResponse(parsed, resp.Body)
		if err != nil {
			proxy.WriteError(w, r, gateway.Internal(err))
			return
		}
	}

	if err := proxy.WriteRaw(w, resp.StatusCode, contentType, body); err != nil {
		h.logger.WarnContext(r.Context(), "failed to write upstream response", "error", err)
	}
}

func isAzureOperation(op string) bool {
	for _, known := range AzureOpenAIOperations {
		if op == known {
			return true
		}
	}
	return false
}
