package dialect

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"mercator-hq/eventgate/pkg/config"
	"mercator-hq/eventgate/pkg/gateway"
	"mercator-hq/eventgate/pkg/proxy/types"
)

func testRegistry() *Registry {
	return NewRegistry(config.APIVersionsConfig{
		AzureOpenAI: "2024-02-01",
		Inference:   "2024-05-01-preview",
		Assistants:  "2024-05-01-preview",
	})
}

var testDeployment = &gateway.Deployment{
	CatalogID:      "c1",
	DeploymentName: "gpt-4o",
	EndpointURL:    "https://upstream.example.com/",
	EndpointKey:    "secret",
}

func kindOf(err error) gateway.Kind {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return -1
}

func TestParse(t *testing.T) {
	reg := testRegistry()

	tests := []struct {
		name     string
		template string
		req      Request
		want     Parsed
		wantKind gateway.Kind
		wantErr  bool
	}{
		{
			name:     "stream true",
			template: AzureOpenAI,
			req:      Request{Name: "gpt-4", Body: []byte(`{"stream":true,"max_tokens":100}`)},
			want:     Parsed{Stream: true, MaxTokens: 100, HasMaxTokens: true, Target: "gpt-4"},
		},
		{
			name:     "stream as string is false",
			template: AzureOpenAI,
			req:      Request{Name: "gpt-4", Body: []byte(`{"stream":"true"}`)},
			want:     Parsed{Target: "gpt-4"},
		},
		{
			name:     "stream as number is false",
			template: AzureOpenAI,
			req:      Request{Name: "gpt-4", Body: []byte(`{"stream":1}`)},
			want:     Parsed{Target: "gpt-4"},
		},
		{
			name:     "non numeric max tokens ignored",
			template: AzureOpenAI,
			req:      Request{Name: "gpt-4", Body: []byte(`{"max_tokens":"lots"}`)},
			want:     Parsed{Target: "gpt-4"},
		},
		{
			name:     "malformed json",
			template: AzureOpenAI,
			req:      Request{Name: "gpt-4", Body: []byte(`{"stream":`)},
			wantErr:  true,
			wantKind: gateway.KindInvalidRequest,
		},
		{
			name:     "openai model from body",
			template: OpenAI,
			req:      Request{Body: []byte(`{"model":"gpt-35"}`)},
			want:     Parsed{Target: "gpt-35"},
		},
		{
			name:     "openai missing model",
			template: OpenAI,
			req:      Request{Body: []byte(`{"messages":[]}`)},
			wantErr:  true,
			wantKind: gateway.KindInvalidRequest,
		},
		{
			name:     "ollama num_predict",
			template: Ollama,
			req:      Request{Body: []byte(`{"model":"llama","options":{"num_predict":64}}`)},
			want:     Parsed{MaxTokens: 64, HasMaxTokens: true, Target: "llama"},
		},
		{
			name:     "search requires api-version",
			template: AzureAISearch,
			req:      Request{Name: "idx", Body: []byte(`{}`), Query: url.Values{}},
			wantErr:  true,
			wantKind: gateway.KindInvalidRequest,
		},
		{
			name:     "search with api-version",
			template: AzureAISearch,
			req:      Request{Name: "idx", Body: []byte(`{}`), Query: url.Values{"api-version": {"2023-11-01"}}},
			want:     Parsed{Target: "idx"},
		},
		{
			name:     "assistants without model",
			template: Assistants,
			req:      Request{Body: []byte(`{"name":"helper"}`)},
			want:     Parsed{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := reg.Get(tt.template).Parse(&tt.req)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if kindOf(err) != tt.wantKind {
					t.Errorf("kind = %v, want %v", kindOf(err), tt.wantKind)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if *got != tt.want {
				t.Errorf("Parse() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestCheckTokenCap(t *testing.T) {
	tests := []struct {
		name    string
		cap     int
		parsed  Parsed
		wantErr bool
	}{
		{"under cap", 4096, Parsed{MaxTokens: 100, HasMaxTokens: true}, false},
		{"at cap", 4096, Parsed{MaxTokens: 4096, HasMaxTokens: true}, false},
		{"over cap", 4096, Parsed{MaxTokens: 9000, HasMaxTokens: true}, true},
		{"unlimited", 0, Parsed{MaxTokens: 9000, HasMaxTokens: true}, false},
		{"absent", 10, Parsed{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckTokenCap(&gateway.RequestContext{MaxTokenCap: tt.cap}, &tt.parsed)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckTokenCap() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), "4096") {
				t.Errorf("message %q does not name the cap", err.Error())
			}
		})
	}
}

func TestUpstreamURL(t *testing.T) {
	reg := testRegistry()

	tests := []struct {
		name     string
		template string
		req      Request
		want     string
	}{
		{
			name:     "azure openai default version",
			template: AzureOpenAI,
			req:      Request{Operation: "chat/completions", Query: url.Values{}},
			want:     "https://upstream.example.com/openai/deployments/gpt-4o/chat/completions?api-version=2024-02-01",
		},
		{
			name:     "azure openai caller version kept",
			template: AzureOpenAI,
			req:      Request{Operation: "embeddings", Query: url.Values{"api-version": {"2023-05-15"}}},
			want:     "https://upstream.example.com/openai/deployments/gpt-4o/embeddings?api-version=2023-05-15",
		},
		{
			name:     "openai has no version",
			template: OpenAI,
			req:      Request{Operation: "chat/completions"},
			want:     "https://upstream.example.com/chat/completions",
		},
		{
			name:     "search",
			template: AzureAISearch,
			req:      Request{Operation: "docs/search", Query: url.Values{"api-version": {"2023-11-01"}}},
			want:     "https://upstream.example.com/indexes/gpt-4o/docs/search?api-version=2023-11-01",
		},
		{
			name:     "search odata",
			template: AzureAISearch,
			req:      Request{Operation: SearchODataOperation, Query: url.Values{"api-version": {"2023-11-01"}}},
			want:     "https://upstream.example.com/indexes('gpt-4o')/docs/search.post.search?api-version=2023-11-01",
		},
		{
			name:     "ollama goes to azure chat",
			template: Ollama,
			req:      Request{},
			want:     "https://upstream.example.com/openai/deployments/gpt-4o/chat/completions?api-version=2024-02-01",
		},
		{
			name:     "inference",
			template: AzureAIInference,
			req:      Request{Operation: "chat/completions"},
			want:     "https://upstream.example.com/models/chat/completions?api-version=2024-05-01-preview",
		},
		{
			name:     "assistants path",
			template: Assistants,
			req:      Request{Operation: "threads/thread_1/messages", Query: url.Values{"limit": {"10"}}},
			want:     "https://upstream.example.com/openai/threads/thread_1/messages?api-version=2024-05-01-preview&limit=10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reg.Get(tt.template).UpstreamURL(testDeployment, &tt.req)
			if got != tt.want {
				t.Errorf("UpstreamURL() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestHeader(t *testing.T) {
	reg := testRegistry()

	h := reg.Get(AzureOpenAI).Header(testDeployment)
	if h.Get("api-key") != "secret" || h.Get("Authorization") != "" {
		t.Errorf("azure header = %v", h)
	}

	h = reg.Get(AzureAIInference).Header(testDeployment)
	if h.Get("Authorization") != "Bearer secret" || h.Get("api-key") != "" {
		t.Errorf("inference header = %v", h)
	}
}

func TestRewriteModel(t *testing.T) {
	tpl := testRegistry().Get(OpenAI)
	req := &Request{Body: []byte(`{"model":"friendly-name","messages":[{"role":"user","content":"hi"}]}`)}

	body, err := tpl.TransformRequest(testDeployment, req, &Parsed{Target: "friendly-name"})
	if err != nil {
		t.Fatal(err)
	}
	if got := gjson.GetBytes(body, "model").Str; got != "gpt-4o" {
		t.Errorf("model = %q", got)
	}
	if got := gjson.GetBytes(body, "messages.0.content").Str; got != "hi" {
		t.Errorf("messages not preserved: %s", body)
	}
}

func TestOllamaToChat(t *testing.T) {
	req := &Request{Body: []byte(`{
		"model": "llama",
		"stream": true,
		"messages": [
			{"role": "system", "content": "be brief"},
			{"role": "user", "content": "what is this?", "images": ["aGVsbG8="]}
		],
		"options": {"temperature": 0, "top_p": 0.9, "num_predict": 50, "stop": ["\n"], "seed": 42}
	}`)}
	p := &Parsed{Stream: true, Target: "llama"}

	body, err := ollamaToChat(testDeployment, req, p)
	if err != nil {
		t.Fatalf("ollamaToChat() error = %v", err)
	}

	checks := map[string]string{
		"model":                              "gpt-4o",
		"stream":                             "true",
		"temperature":                        "0",
		"top_p":                              "0.9",
		"max_tokens":                         "50",
		"seed":                               "42",
		"stop.0":                             "\n",
		"messages.0.content":                 "be brief",
		"messages.1.content.0.type":          "text",
		"messages.1.content.0.text":          "what is this?",
		"messages.1.content.1.type":          "image_url",
		"messages.1.content.1.image_url.url": "data:image/jpeg;base64,aGVsbG8=",
	}
	for path, want := range checks {
		if got := gjson.GetBytes(body, path).String(); got != want {
			t.Errorf("%s = %q, want %q (body %s)", path, got, want, body)
		}
	}
	if !gjson.GetBytes(body, "temperature").Exists() {
		t.Error("explicit zero temperature was dropped")
	}
}

func TestOllamaToChat_NonBooleanStream(t *testing.T) {
	tests := []struct {
		name   string
		stream string
	}{
		{"string", `"true"`},
		{"number", `1`},
		{"null", `null`},
		{"object", `{"on":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &Request{Body: []byte(`{"model":"llama","stream":` + tt.stream + `,"messages":[{"role":"user","content":"hi"}]}`)}
			p, err := testRegistry().Get(Ollama).Parse(req)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if p.Stream {
				t.Error("non-boolean stream parsed as streaming")
			}
			body, err := ollamaToChat(testDeployment, req, p)
			if err != nil {
				t.Fatalf("ollamaToChat() error = %v", err)
			}
			if gjson.GetBytes(body, "stream").Bool() {
				t.Errorf("upstream body streams: %s", body)
			}
			if got := gjson.GetBytes(body, "messages.0.content").String(); got != "hi" {
				t.Errorf("messages.0.content = %q", got)
			}
		})
	}
}

func TestOllamaToChat_Invalid(t *testing.T) {
	_, err := ollamaToChat(testDeployment, &Request{Body: []byte(`{"messages":"nope"}`)}, &Parsed{})
	if kindOf(err) != gateway.KindInvalidRequest {
		t.Errorf("expected invalid request, got %v", err)
	}
}

func fixedNow(t *testing.T) {
	t.Helper()
	prev := now
	now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { now = prev })
}

func decodeLines(t *testing.T, out []byte) []types.OllamaChatResponse {
	t.Helper()
	var lines []types.OllamaChatResponse
	for _, raw := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if raw == "" {
			continue
		}
		var line types.OllamaChatResponse
		if err := json.Unmarshal([]byte(raw), &line); err != nil {
			t.Fatalf("invalid NDJSON line %q: %v", raw, err)
		}
		lines = append(lines, line)
	}
	return lines
}

func TestOllamaEncoder_RoundTrip(t *testing.T) {
	fixedNow(t)
	enc := newOllamaEncoder(&Parsed{Target: "llama"})

	var out []byte
	for _, frame := range []string{
		"data: {\"choices\":[{\"delta\":{\"content\":\"A\"},\"finish_reason\":null}]}\n\n",
		"data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n",
		"data: [DONE]\n\n",
	} {
		b, err := enc.Encode([]byte(frame))
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, b...)
	}
	tail, err := enc.Close()
	if err != nil {
		t.Fatal(err)
	}
	out = append(out, tail...)

	lines := decodeLines(t, out)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %s", len(lines), out)
	}
	if lines[0].Done || lines[0].Message.Content != "A" {
		t.Errorf("first line = %+v", lines[0])
	}
	if !lines[1].Done {
		t.Errorf("second line = %+v, want done", lines[1])
	}
	if lines[0].Model != "llama" || lines[0].CreatedAt != "2026-03-01T12:00:00Z" {
		t.Errorf("line metadata = %+v", lines[0])
	}
	if enc.ContentType() != NDJSONContentType {
		t.Errorf("ContentType() = %s", enc.ContentType())
	}
}

func TestOllamaEncoder_PartialFrames(t *testing.T) {
	stream := "data: {\"choices\":[{\"delta\":{\"content\":\"héllo wörld\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"!\"},\"finish_reason\":\"stop\"}]}\n\n"

	// split every few bytes, cutting through the multi-byte characters
	for _, size := range []int{1, 3, 7, 16} {
		t.Run(fmt.Sprintf("chunk size %d", size), func(t *testing.T) {
			enc := newOllamaEncoder(&Parsed{Target: "llama"})
			raw := []byte(stream)

			var out []byte
			for i := 0; i < len(raw); i += size {
				end := min(i+size, len(raw))
				b, err := enc.Encode(raw[i:end])
				if err != nil {
					t.Fatalf("Encode() error = %v", err)
				}
				out = append(out, b...)
			}
			tail, err := enc.Close()
			if err != nil {
				t.Fatal(err)
			}
			out = append(out, tail...)

			lines := decodeLines(t, out)
			if len(lines) != 2 {
				t.Fatalf("got %d lines: %s", len(lines), out)
			}
			if lines[0].Message.Content != "héllo wörld" || lines[0].Done {
				t.Errorf("first line = %+v", lines[0])
			}
			if lines[1].Message.Content != "!" || !lines[1].Done {
				t.Errorf("second line = %+v", lines[1])
			}
		})
	}
}

func TestOllamaEncoder_SkipsEmptyAndUnparsableFrames(t *testing.T) {
	enc := newOllamaEncoder(&Parsed{Target: "llama"})
	out, err := enc.Encode([]byte(
		"data: {\"choices\":[],\"prompt_filter_results\":[]}\n\n" +
			"data: {\"choices\":[{\"delta\":{\"role\":\"assistant\",\"content\":\"\"}}]}\n\n" +
			": keep-alive\n\n" +
			"data: {not json}\n\n",
	))
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Errorf("expected no output, got %s", out)
	}

	// a stream ending without a finish reason still terminates
	tail, err := enc.Close()
	if err != nil {
		t.Fatal(err)
	}
	lines := decodeLines(t, tail)
	if len(lines) != 1 || !lines[0].Done {
		t.Errorf("Close() lines = %+v", lines)
	}
}

func TestChatToOllama(t *testing.T) {
	fixedNow(t)
	body := []byte(`{"id":"x","choices":[{"message":{"role":"assistant","content":"hi there"},"finish_reason":"stop"}],"usage":{"total_tokens":3}}`)

	out, contentType, err := chatToOllama(&Parsed{Target: "llama"}, body)
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "application/json" {
		t.Errorf("content type = %s", contentType)
	}

	var resp types.OllamaChatResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Model != "llama" || !resp.Done || resp.Message.Content != "hi there" || resp.Message.Role != "assistant" {
		t.Errorf("response = %+v", resp)
	}
}

func TestTags(t *testing.T) {
	fixedNow(t)
	tags := Tags([]string{"gpt-35", "gpt-4"})
	if len(tags.Models) != 2 || tags.Models[1].Name != "gpt-4" || tags.Models[1].Model != "gpt-4" {
		t.Errorf("Tags() = %+v", tags)
	}
}

func TestRegistryGetUnknownPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for an unknown template")
		}
	}()
	testRegistry().Get("gopher")
}
