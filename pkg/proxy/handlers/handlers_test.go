package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"mercator-hq/eventgate/pkg/config"
	"mercator-hq/eventgate/pkg/gateway"
	"mercator-hq/eventgate/pkg/providers"
	"mercator-hq/eventgate/pkg/proxy/dialect"
	"mercator-hq/eventgate/pkg/proxy/types"
	"mercator-hq/eventgate/pkg/routing"
	"mercator-hq/eventgate/pkg/security/auth"
	"mercator-hq/eventgate/pkg/store"
	"mercator-hq/eventgate/pkg/store/memory"
	"mercator-hq/eventgate/pkg/usage"
)

type fakeForwarder struct {
	mu      sync.Mutex
	calls   []*providers.Call
	streams int
	resp    *providers.Response
	err     error
}

func (f *fakeForwarder) Post(_ context.Context, call *providers.Call) (*providers.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeForwarder) PostStreaming(_ context.Context, call *providers.Call, w http.ResponseWriter, enc providers.StreamEncoder) error {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.streams++
	f.mu.Unlock()
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "data: [DONE]\n\n")
	return nil
}

func (f *fakeForwarder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeForwarder) last() *providers.Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func jsonResponse(status int, body string) *providers.Response {
	return &providers.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       []byte(body),
	}
}

type fixture struct {
	store     *memory.Store
	forwarder *fakeForwarder
	router    chi.Router
	rc        *gateway.RequestContext
}

func seed(t *testing.T, st *memory.Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	if err := st.PutEvent(ctx, &gateway.Event{
		ID:     "ev1",
		Code:   "contoso",
		Start:  now.Add(-time.Hour),
		End:    now.Add(time.Hour),
		Active: true,
	}); err != nil {
		t.Fatal(err)
	}
	for _, d := range []gateway.Deployment{
		{CatalogID: "c1", DeploymentName: "gpt-4", ModelType: gateway.ModelTypeChat, EndpointURL: "https://aoai.example.com", EndpointKey: "k1"},
		{CatalogID: "c2", DeploymentName: "ada", ModelType: gateway.ModelTypeEmbedding, EndpointURL: "https://aoai.example.com", EndpointKey: "k2"},
		{CatalogID: "c3", DeploymentName: "asst", ModelType: gateway.ModelTypeAssistant, EndpointURL: "https://asst.example.com", EndpointKey: "k3"},
	} {
		if err := st.PutDeployment(ctx, d, true); err != nil {
			t.Fatal(err)
		}
		if err := st.LinkDeployment(ctx, "ev1", d.CatalogID); err != nil {
			t.Fatal(err)
		}
	}
}

func newFixture(t *testing.T, fwd Forwarder) *fixture {
	t.Helper()
	st := memory.New()
	seed(t, st)

	f := &fixture{
		store: st,
		rc: &gateway.RequestContext{
			APIKey:      "attendee-key",
			EventID:     "ev1",
			EventCode:   "contoso",
			MaxTokenCap: 4096,
			Usage:       gateway.EmptyUsage,
		},
	}
	if ff, ok := fwd.(*fakeForwarder); ok {
		f.forwarder = ff
	}

	resolver := routing.NewResolver(st, routing.Config{MinTTL: time.Minute, MaxTTL: 2 * time.Minute}, nil)
	registry := dialect.NewRegistry(config.APIVersionsConfig{
		AzureOpenAI: "2024-02-01",
		Inference:   "2024-05-01-preview",
		Assistants:  "2024-05-01-preview",
	})
	ph := NewProxyHandler(registry, resolver, fwd, 0)
	ah := NewAssistantsHandler(ph, st)
	eh := NewEventHandler(st, st, resolver)

	r := chi.NewRouter()
	r.Get("/event/{eventId}", eh.Event)
	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				// each request gets its own copy, as the auth resolver does
				rc := *f.rc
				next.ServeHTTP(w, req.WithContext(gateway.NewContext(req.Context(), &rc)))
			})
		})
		r.Post("/eventinfo", eh.EventInfo)
		r.Post("/openai/deployments/{deployment}/*", ph.AzureOpenAI)
		r.Post("/chat/completions", ph.OpenAI("chat/completions"))
		r.Post("/models/chat/completions", ph.Inference("chat/completions"))
		r.Post("/indexes/{index}/docs/search", ph.Search)
		r.Post("/indexes('{index}')/docs/search.post.search", ph.SearchOData)
		r.Post("/api/chat", ph.OllamaChat)
		r.Get("/api/tags", ph.OllamaTags)
		for _, c := range AssistantCollections {
			r.Handle("/openai/"+c, ah)
			r.Handle("/openai/"+c+"/*", ah)
		}
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.RequirePrincipal)
		r.Post("/attendee/event/{eventId}/register", eh.Register)
		r.Get("/attendee/event/{eventId}", eh.Attendee)
	})
	f.router = r
	return f
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) types.ErrorResponse {
	t.Helper()
	var errResp types.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("invalid error body %q: %v", rec.Body.String(), err)
	}
	if errResp.Code != rec.Code {
		t.Errorf("body code %d does not mirror status %d", errResp.Code, rec.Code)
	}
	return errResp
}

func TestProxy_MaxTokensOverCap(t *testing.T) {
	fwd := &fakeForwarder{resp: jsonResponse(200, `{}`)}
	f := newFixture(t, fwd)

	rec := f.do(http.MethodPost, "/openai/deployments/gpt-4/chat/completions?api-version=2024-02-01",
		`{"model":"gpt-4","max_tokens":9000,"messages":[{"role":"user","content":"hi"}]}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if msg := decodeError(t, rec).Message; !strings.Contains(msg, "4096") {
		t.Errorf("message = %q, want the cap", msg)
	}
	if fwd.count() != 0 {
		t.Errorf("forwarder calls = %d, want 0", fwd.count())
	}
}

func TestProxy_AzureOpenAIForwards(t *testing.T) {
	fwd := &fakeForwarder{resp: jsonResponse(200, `{"id":"cmpl","usage":{"total_tokens":5}}`)}
	f := newFixture(t, fwd)

	rec := f.do(http.MethodPost, "/openai/deployments/gpt-4/chat/completions?api-version=2023-05-15&empty=",
		`{"max_tokens":100,"messages":[]}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != `{"id":"cmpl","usage":{"total_tokens":5}}` {
		t.Errorf("body = %s", rec.Body.String())
	}

	call := fwd.last()
	if call.URL != "https://aoai.example.com/openai/deployments/gpt-4/chat/completions?api-version=2023-05-15" {
		t.Errorf("URL = %s", call.URL)
	}
	if call.Header.Get("api-key") != "k1" {
		t.Errorf("upstream api-key = %q, want the deployment secret", call.Header.Get("api-key"))
	}
	if call.APIKey != "attendee-key" || call.EventID != "ev1" || call.CatalogID != "c1" {
		t.Errorf("metering ids = %s/%s/%s", call.APIKey, call.EventID, call.CatalogID)
	}
}

func TestProxy_UnsupportedOperation(t *testing.T) {
	fwd := &fakeForwarder{}
	f := newFixture(t, fwd)

	rec := f.do(http.MethodPost, "/openai/deployments/gpt-4/fine_tuning/jobs", `{}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if fwd.count() != 0 {
		t.Error("forwarder must not be called")
	}
}

func TestProxy_DeploymentNotFoundListsCatalog(t *testing.T) {
	fwd := &fakeForwarder{}
	f := newFixture(t, fwd)

	rec := f.do(http.MethodPost, "/chat/completions", `{"model":"gpt-5","messages":[]}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	msg := decodeError(t, rec).Message
	if !strings.HasSuffix(msg, "Available deployments are: ada, asst, gpt-4") {
		t.Errorf("message = %q", msg)
	}
	if fwd.count() != 0 {
		t.Error("forwarder must not be called")
	}
}

func TestProxy_OpenAIRewritesModelAndUsesBearer(t *testing.T) {
	fwd := &fakeForwarder{resp: jsonResponse(200, `{}`)}
	f := newFixture(t, fwd)

	rec := f.do(http.MethodPost, "/chat/completions", `{"model":"gpt-4","messages":[]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	call := fwd.last()
	if call.Header.Get("Authorization") != "Bearer k1" {
		t.Errorf("Authorization = %q", call.Header.Get("Authorization"))
	}
	if call.URL != "https://aoai.example.com/chat/completions" {
		t.Errorf("URL = %s", call.URL)
	}
}

func TestProxy_SearchRequiresAPIVersion(t *testing.T) {
	fwd := &fakeForwarder{resp: jsonResponse(200, `{"value":[]}`)}
	f := newFixture(t, fwd)
	f.seedSearch(t)

	rec := f.do(http.MethodPost, "/indexes/docs-idx/docs/search", `{"search":"*"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	rec = f.do(http.MethodPost, "/indexes('docs-idx')/docs/search.post.search?api-version=2023-11-01", `{"search":"*"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := fwd.last().URL; got != "https://search.example.com/indexes('docs-idx')/docs/search.post.search?api-version=2023-11-01" {
		t.Errorf("URL = %s", got)
	}
}

func (f *fixture) seedSearch(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	d := gateway.Deployment{CatalogID: "s1", DeploymentName: "docs-idx", ModelType: gateway.ModelTypeSearch, EndpointURL: "https://search.example.com", EndpointKey: "sk"}
	if err := f.store.PutDeployment(ctx, d, true); err != nil {
		t.Fatal(err)
	}
	if err := f.store.LinkDeployment(ctx, "ev1", "s1"); err != nil {
		t.Fatal(err)
	}
}

func TestProxy_StreamUsesStreamingForwarder(t *testing.T) {
	fwd := &fakeForwarder{}
	f := newFixture(t, fwd)

	rec := f.do(http.MethodPost, "/models/chat/completions", `{"model":"gpt-4","stream":true,"messages":[]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if fwd.streams != 1 {
		t.Errorf("streams = %d, want 1", fwd.streams)
	}
}

func TestProxy_UpstreamUnavailable(t *testing.T) {
	fwd := &fakeForwarder{err: gateway.Unavailable(providers.DetailTimeout, context.DeadlineExceeded)}
	f := newFixture(t, fwd)

	rec := f.do(http.MethodPost, "/chat/completions", `{"model":"gpt-4"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestEventInfo(t *testing.T) {
	f := newFixture(t, &fakeForwarder{})

	rec := f.do(http.MethodPost, "/eventinfo", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	body := rec.Body.Bytes()
	checks := map[string]string{
		"is_authorized":                 "true",
		"max_token_cap":                 "4096",
		"event_code":                    "contoso",
		"capabilities.openai-chat.0":    "gpt-4",
		"capabilities.openai-embedding": `["ada"]`,
	}
	for path, want := range checks {
		if got := gjson.GetBytes(body, path).String(); got != want {
			t.Errorf("%s = %s, want %s", path, got, want)
		}
	}
}

func TestOllama_Tags(t *testing.T) {
	f := newFixture(t, &fakeForwarder{})

	rec := f.do(http.MethodGet, "/api/tags", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := gjson.Get(rec.Body.String(), "models.#.name").String(); got != `["gpt-4"]` {
		t.Errorf("models = %s", got)
	}
}

func TestOllama_Ping(t *testing.T) {
	for _, method := range []string{http.MethodHead, http.MethodGet} {
		rec := httptest.NewRecorder()
		OllamaPing(rec, httptest.NewRequest(method, "/", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", method, rec.Code)
		}
		if method == http.MethodGet && rec.Body.String() != "Ollama is running" {
			t.Errorf("body = %q", rec.Body.String())
		}
	}
}

func TestOllama_BufferedChatIsReencoded(t *testing.T) {
	fwd := &fakeForwarder{resp: jsonResponse(200, `{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`)}
	f := newFixture(t, fwd)

	rec := f.do(http.MethodPost, "/api/chat", `{"model":"gpt-4","stream":false,"messages":[{"role":"user","content":"hi"}],"options":{"temperature":0.2}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := gjson.Get(rec.Body.String(), "message.content").Str; got != "hello" {
		t.Errorf("message.content = %q", got)
	}
	if !gjson.Get(rec.Body.String(), "done").Bool() {
		t.Error("buffered response must be done")
	}

	call := fwd.last()
	if !strings.HasPrefix(call.URL, "https://aoai.example.com/openai/deployments/gpt-4/chat/completions?api-version=") {
		t.Errorf("URL = %s", call.URL)
	}
	if got := gjson.GetBytes(call.Body, "messages.0.content").Str; got != "hi" {
		t.Errorf("forwarded body = %s", call.Body)
	}
}

func TestOllama_NonBooleanStreamIsBuffered(t *testing.T) {
	for _, stream := range []string{`"true"`, `1`} {
		t.Run(stream, func(t *testing.T) {
			fwd := &fakeForwarder{resp: jsonResponse(200, `{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`)}
			f := newFixture(t, fwd)

			rec := f.do(http.MethodPost, "/api/chat", `{"model":"gpt-4","stream":`+stream+`,"messages":[{"role":"user","content":"hi"}]}`)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			if fwd.count() != 1 {
				t.Fatalf("forwarder calls = %d, want 1", fwd.count())
			}
			if gjson.GetBytes(fwd.last().Body, "stream").Bool() {
				t.Errorf("forwarded body streams: %s", fwd.last().Body)
			}
			if !gjson.Get(rec.Body.String(), "done").Bool() {
				t.Error("buffered response must be done")
			}
		})
	}
}

func TestOllama_NumPredictOverCap(t *testing.T) {
	fwd := &fakeForwarder{}
	f := newFixture(t, fwd)

	rec := f.do(http.MethodPost, "/api/chat", `{"model":"gpt-4","messages":[],"options":{"num_predict":5000}}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if fwd.count() != 0 {
		t.Error("forwarder must not be called")
	}
}

type countingMeter struct {
	mu    sync.Mutex
	calls int
}

func (m *countingMeter) Record(context.Context, string, string, string, []byte) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return nil
}

func TestOllama_StreamRoundTrip(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gjson.GetBytes(mustRead(r.Body), "stream").Bool() != true {
			http.Error(w, "expected stream", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"A\"},\"finish_reason\":null}]}\n\n")
		w.(http.Flusher).Flush()
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\ndata: [DONE]\n\n")
	}))
	defer upstream.Close()

	meter := &countingMeter{}
	fwd := providers.New(&config.UpstreamConfig{Timeout: 5 * time.Second}, meter, nil)
	defer fwd.Close()

	f := newFixture(t, fwd)
	ctx := context.Background()
	if err := f.store.PutDeployment(ctx, gateway.Deployment{
		CatalogID: "c1", DeploymentName: "gpt-4", ModelType: gateway.ModelTypeChat,
		EndpointURL: upstream.URL, EndpointKey: "k1",
	}, true); err != nil {
		t.Fatal(err)
	}

	rec := f.do(http.MethodPost, "/api/chat", `{"model":"gpt-4","stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != dialect.NDJSONContentType {
		t.Errorf("Content-Type = %s", ct)
	}

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines: %q", len(lines), rec.Body.String())
	}
	if gjson.Get(lines[0], "done").Bool() || gjson.Get(lines[0], "message.content").Str != "A" {
		t.Errorf("first line = %s", lines[0])
	}
	if !gjson.Get(lines[1], "done").Bool() {
		t.Errorf("second line = %s", lines[1])
	}
	if meter.calls != 1 {
		t.Errorf("meter calls = %d, want 1", meter.calls)
	}
}

func mustRead(r io.Reader) []byte {
	b, _ := io.ReadAll(r)
	return b
}

func TestAssistants_UnownedIDIsNotFound(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodDelete, "/openai/assistants/asst_123", "Assistant not found."},
		{http.MethodGet, "/openai/threads/thread_9/messages", "Thread not found."},
		{http.MethodGet, "/openai/files/file-1", "File not found."},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			fwd := &fakeForwarder{resp: jsonResponse(200, `{}`)}
			f := newFixture(t, fwd)

			rec := f.do(tt.method, tt.path, "")
			if rec.Code != http.StatusNotFound {
				t.Fatalf("status = %d, want 404", rec.Code)
			}
			if msg := decodeError(t, rec).Message; msg != tt.want {
				t.Errorf("message = %q, want %q", msg, tt.want)
			}
			if fwd.count() != 0 {
				t.Errorf("forwarder calls = %d, want 0", fwd.count())
			}
		})
	}
}

func TestAssistants_Lifecycle(t *testing.T) {
	fwd := &fakeForwarder{resp: jsonResponse(200, `{"id":"asst_1","object":"assistant"}`)}
	f := newFixture(t, fwd)
	ctx := context.Background()

	rec := f.do(http.MethodPost, "/openai/assistants", `{"name":"helper","instructions":"be kind"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	call := fwd.last()
	if call.URL != "https://asst.example.com/openai/assistants?api-version=2024-05-01-preview" {
		t.Errorf("URL = %s", call.URL)
	}
	if owned, _ := f.store.HasOwnership(ctx, "attendee-key", "asst_1", gateway.ObjectAssistant); !owned {
		t.Fatal("created assistant was not recorded")
	}

	// list shows only owned objects
	fwd.resp = jsonResponse(200, `{"object":"list","data":[{"id":"asst_1"},{"id":"asst_other"}]}`)
	rec = f.do(http.MethodGet, "/openai/assistants?limit=20", "")
	if got := gjson.Get(rec.Body.String(), "data.#.id").String(); got != `["asst_1"]` {
		t.Errorf("listed ids = %s", got)
	}

	fwd.resp = jsonResponse(200, `{"id":"asst_1","deleted":true}`)
	rec = f.do(http.MethodDelete, "/openai/assistants/asst_1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if owned, _ := f.store.HasOwnership(ctx, "attendee-key", "asst_1", gateway.ObjectAssistant); owned {
		t.Error("deleted assistant is still owned")
	}
}

func TestAssistants_CreateThreadAndRun(t *testing.T) {
	fwd := &fakeForwarder{resp: jsonResponse(200, `{"id":"run_1","thread_id":"thread_7"}`)}
	f := newFixture(t, fwd)

	rec := f.do(http.MethodPost, "/openai/threads/runs", `{"assistant_id":"asst_1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	owned, _ := f.store.HasOwnership(context.Background(), "attendee-key", "thread_7", gateway.ObjectThread)
	if !owned {
		t.Error("thread created by a run was not recorded")
	}
}

func TestAssistants_FailedCreateIsNotRecorded(t *testing.T) {
	fwd := &fakeForwarder{resp: jsonResponse(400, `{"id":"asst_bad","error":{}}`)}
	f := newFixture(t, fwd)

	rec := f.do(http.MethodPost, "/openai/assistants", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want the upstream status", rec.Code)
	}
	if owned, _ := f.store.HasOwnership(context.Background(), "attendee-key", "asst_bad", gateway.ObjectAssistant); owned {
		t.Error("failed create must not be recorded")
	}
}

func TestParseAssistantsPath(t *testing.T) {
	tests := []struct {
		in     string
		id     string
		nested bool
		ok     bool
	}{
		{"assistants", "", false, true},
		{"assistants/asst_1", "asst_1", false, true},
		{"threads/thread_1/runs/run_1", "thread_1", true, true},
		{"threads/runs", "", false, true},
		{"files/file-1/content", "file-1", true, true},
		{"vector_stores", "", false, false},
	}
	for _, tt := range tests {
		p, ok := parseAssistantsPath(tt.in)
		if ok != tt.ok {
			t.Errorf("%s: ok = %v", tt.in, ok)
			continue
		}
		if ok && (p.id != tt.id || p.nested != tt.nested) {
			t.Errorf("%s: id = %q nested = %v", tt.in, p.id, p.nested)
		}
	}
}

func principalHeader(t *testing.T, userID string) string {
	t.Helper()
	blob, err := auth.EncodePrincipal(&gateway.Principal{UserID: userID})
	if err != nil {
		t.Fatal(err)
	}
	return blob
}

func TestAttendee_RegisterAndGet(t *testing.T) {
	f := newFixture(t, &fakeForwarder{})
	blob := principalHeader(t, "user-1")

	register := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/attendee/event/ev1/register", nil)
		req.Header.Set("x-ms-client-principal", blob)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		return rec
	}

	first := register()
	if first.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", first.Code, first.Body.String())
	}
	key := gjson.Get(first.Body.String(), "api_key").Str
	if key == "" {
		t.Fatal("missing api_key")
	}

	second := register()
	if got := gjson.Get(second.Body.String(), "api_key").Str; got != key {
		t.Errorf("second registration key = %q, want the existing %q", got, key)
	}

	req := httptest.NewRequest(http.MethodGet, "/attendee/event/ev1", nil)
	req.Header.Set("x-ms-client-principal", blob)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	if gjson.Get(rec.Body.String(), "api_key").Str != key || !gjson.Get(rec.Body.String(), "active").Bool() {
		t.Errorf("attendee = %s", rec.Body.String())
	}
}

func TestAttendee_Errors(t *testing.T) {
	f := newFixture(t, &fakeForwarder{})
	blob := principalHeader(t, "user-2")

	tests := []struct {
		name   string
		method string
		path   string
		header string
		want   int
	}{
		{"unknown event", http.MethodPost, "/attendee/event/nope/register", blob, http.StatusNotFound},
		{"not registered", http.MethodGet, "/attendee/event/ev1", blob, http.StatusNotFound},
		{"missing principal", http.MethodPost, "/attendee/event/ev1/register", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("x-ms-client-principal", tt.header)
			}
			rec := httptest.NewRecorder()
			f.router.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

type conflictingAttendees struct {
	store.AttendeeStore
}

func (conflictingAttendees) RegisterAttendee(context.Context, string, string) (*gateway.Attendee, bool, error) {
	return nil, false, store.ErrConflict
}

func TestAttendee_RegisterConflict(t *testing.T) {
	eh := NewEventHandler(conflictingAttendees{}, memory.New(), nil)
	r := chi.NewRouter()
	r.With(auth.RequirePrincipal).Post("/attendee/event/{eventId}/register", eh.Register)

	req := httptest.NewRequest(http.MethodPost, "/attendee/event/ev1/register", nil)
	req.Header.Set("x-ms-client-principal", principalHeader(t, "user-3"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if msg := decodeError(t, rec).Message; msg != "conflict, please retry" {
		t.Errorf("message = %q", msg)
	}
}

func TestPublicEvent(t *testing.T) {
	f := newFixture(t, &fakeForwarder{})

	rec := f.do(http.MethodGet, "/event/ev1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if gjson.Get(rec.Body.String(), "event_code").Str != "contoso" {
		t.Errorf("body = %s", rec.Body.String())
	}
	if gjson.Get(rec.Body.String(), "start_timestamp").Int() == 0 {
		t.Error("start_timestamp missing")
	}

	if rec := f.do(http.MethodGet, "/event/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing event status = %d", rec.Code)
	}
}

func TestFeedHandler_StreamsRecords(t *testing.T) {
	feed := usage.NewFeed(8)
	srv := httptest.NewServer(NewFeedHandler(feed))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?event=ev1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for feed.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	feed.Publish(gateway.UsageRecord{ID: "u0", EventID: "other", CatalogID: "c9", Usage: gateway.EmptyUsage})
	feed.Publish(gateway.UsageRecord{ID: "u1", APIKey: "secret", EventID: "ev1", CatalogID: "c1", Usage: gateway.EmptyUsage})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if gjson.GetBytes(msg, "id").Str != "u1" {
		t.Errorf("message = %s, want only the ev1 record", msg)
	}
	if strings.Contains(string(msg), "secret") {
		t.Error("API key leaked into the feed")
	}
}

func TestFeedHandler_RejectsCrossOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://gateway.example.com/admin/usage/stream", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	if sameOrigin(req) {
		t.Error("cross-origin browser request accepted")
	}
	req.Header.Set("Origin", "http://gateway.example.com")
	if !sameOrigin(req) {
		t.Error("same-origin request rejected")
	}
}
