package handlers

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"mercator-hq/eventgate/pkg/gateway"
	"mercator-hq/eventgate/pkg/proxy"
	"mercator-hq/eventgate/pkg/proxy/dialect"
	"mercator-hq/eventgate/pkg/store"
)

// AssistantCollections are the collections served under /openai/.
var AssistantCollections = []string{"assistants", "threads", "files"}

// AssistantMethods are the verbs the assistants routes accept.
var AssistantMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete}

var collectionTypes = map[string]gateway.ObjectType{
	"assistants": gateway.ObjectAssistant,
	"threads":    gateway.ObjectThread,
	"files":      gateway.ObjectFile,
}

var notFoundMessages = map[gateway.ObjectType]string{
	gateway.ObjectAssistant: "Assistant not found.",
	gateway.ObjectThread:    "Thread not found.",
	gateway.ObjectFile:      "File not found.",
}

// assistantsPath is an /openai/{collection}[/{id}[/...]] path.
type assistantsPath struct {
	operation  string
	objectType gateway.ObjectType
	id         string
	nested     bool
}

// parseAssistantsPath splits the part of the URL path following "/openai/".
// POST /threads/runs creates a thread and has no id.
func parseAssistantsPath(op string) (*assistantsPath, bool) {
	op = strings.Trim(op, "/")
	segs := strings.Split(op, "/")
	t, ok := collectionTypes[segs[0]]
	if !ok {
		return nil, false
	}

	p := &assistantsPath{operation: op, objectType: t}
	if len(segs) > 1 && !(t == gateway.ObjectThread && segs[1] == "runs") {
		p.id = segs[1]
		p.nested = len(segs) > 2
	}
	return p, true
}

// AssistantsHandler proxies the assistants, threads and files APIs and
// confines each API key to the objects it created.
type AssistantsHandler struct {
	proxy  *ProxyHandler
	owners store.OwnershipStore
}

// NewAssistantsHandler creates the ownership-tracking assistants handler.
func NewAssistantsHandler(p *ProxyHandler, owners store.OwnershipStore) *AssistantsHandler {
	return &AssistantsHandler{proxy: p, owners: owners}
}

// ServeHTTP handles {GET,POST,DELETE} /openai/{collection}[/{*path}].
func (h *AssistantsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	proxy.SetDialect(ctx, dialect.Assistants)

	rc, ok := gateway.FromContext(ctx)
	if !ok {
		proxy.WriteError(w, r, gateway.Unauthenticated("Missing API key."))
		return
	}

	idx := strings.Index(r.URL.Path, "/openai/")
	if idx < 0 {
		proxy.WriteError(w, r, gateway.NotFound("Not found."))
		return
	}
	path, ok := parseAssistantsPath(r.URL.Path[idx+len("/openai/"):])
	if !ok {
		proxy.WriteError(w, r, gateway.NotFound("Not found."))
		return
	}

	if path.id != "" {
		owned, err := h.owners.HasOwnership(ctx, rc.APIKey, path.id, path.objectType)
		if err != nil {
			proxy.WriteError(w, r, fmt.Errorf("check ownership: %w", err))
			return
		}
		if !owned {
			proxy.WriteError(w, r, gateway.NotFound(notFoundMessages[path.objectType]))
			return
		}
	}

	body, err := proxy.ReadBody(r, h.proxy.maxBodyBytes)
	if err != nil {
		proxy.WriteError(w, r, err)
		return
	}

	tpl := h.proxy.templates.Get(dialect.Assistants)
	req := &dialect.Request{
		Method:    r.Method,
		Operation: path.operation,
		Body:      body,
		Query:     proxy.ForwardQuery(r.URL.Query()),
	}

	// file uploads are multipart and pass through untouched
	var extra http.Header
	parsed := &dialect.Parsed{}
	if ct := r.Header.Get("Content-Type"); ct != "" && !isJSON(ct) {
		extra = http.Header{"Content-Type": {ct}}
	} else if parsed, err = tpl.Parse(req); err != nil {
		proxy.WriteError(w, r, err)
		return
	}

	d, err := h.deployment(ctx, rc.EventID, parsed.Target)
	if err != nil {
		proxy.WriteError(w, r, err)
		return
	}

	if parsed.Stream {
		if err := h.proxy.stream(w, r, rc, tpl, req, parsed, d); err != nil {
			proxy.WriteError(w, r, err)
		}
		return
	}

	resp, err := h.proxy.call(r, rc, tpl, req, parsed, d, extra)
	if err != nil {
		proxy.WriteError(w, r, err)
		return
	}

	if resp.StatusCode < http.StatusMultipleChoices {
		if resp.Body, err = h.track(ctx, rc.APIKey, r.Method, path, resp.Body); err != nil {
			proxy.WriteError(w, r, err)
			return
		}
	}
	h.proxy.writeUpstream(w, r, tpl, parsed, resp)
}

func (h *AssistantsHandler) deployment(ctx context.Context, eventID, name string) (*gateway.Deployment, error) {
	if name != "" {
		return h.proxy.resolver.Resolve(ctx, eventID, name)
	}
	return h.proxy.resolver.ResolveByType(ctx, eventID, gateway.ModelTypeAssistant)
}

// track updates ownership after a successful upstream call and filters
// list responses to the caller's objects.
func (h *AssistantsHandler) track(ctx context.Context, apiKey, method string, path *assistantsPath, body []byte) ([]byte, error) {
	switch {
	case method == http.MethodPost && path.id == "":
		idField := "id"
		if path.operation == "threads/runs" {
			idField = "thread_id"
		}
		id := gjson.GetBytes(body, idField).Str
		if id == "" {
			return body, nil
		}
		if err := h.owners.AddOwnership(ctx, apiKey, id, path.objectType); err != nil {
			return nil, fmt.Errorf("record ownership: %w", err)
		}

	case method == http.MethodDelete && path.id != "" && !path.nested:
		if err := h.owners.RemoveOwnership(ctx, apiKey, path.id, path.objectType); err != nil {
			return nil, fmt.Errorf("remove ownership: %w", err)
		}

	case method == http.MethodGet && path.id == "":
		return h.filterList(ctx, apiKey, path.objectType, body)
	}
	return body, nil
}

func (h *AssistantsHandler) filterList(ctx context.Context, apiKey string, t gateway.ObjectType, body []byte) ([]byte, error) {
	data := gjson.GetBytes(body, "data")
	if !data.IsArray() {
		return body, nil
	}

	ids, err := h.owners.ListOwned(ctx, apiKey, t)
	if err != nil {
		return nil, fmt.Errorf("list owned objects: %w", err)
	}
	owned := make(map[string]bool, len(ids))
	for _, id := range ids {
		owned[id] = true
	}

	var kept strings.Builder
	kept.WriteByte('[')
	n := 0
	data.ForEach(func(_, item gjson.Result) bool {
		if owned[item.Get("id").Str] {
			if n > 0 {
				kept.WriteByte(',')
			}
			kept.WriteString(item.Raw)
			n++
		}
		return true
	})
	kept.WriteByte(']')

	filtered, err := sjson.SetRawBytes(body, "data", []byte(kept.String()))
	if err != nil {
		return nil, fmt.Errorf("filter list: %w", err)
	}
	return filtered, nil
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && (mt == "application/json" || strings.HasSuffix(mt, "+json"))
}
