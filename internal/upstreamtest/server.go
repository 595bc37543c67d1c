// Package upstreamtest provides a fake Azure OpenAI upstream for tests.
package upstreamtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// Response is a canned reply for one upstream path.
type Response struct {
	StatusCode int
	Body       any
	Delay      time.Duration
	Headers    map[string]string
	// StreamChunks are sent as SSE data lines followed by [DONE].
	StreamChunks []string
}

// Request is what the fake upstream received.
type Request struct {
	Method string
	Path   string
	Query  string
	APIKey string
	Auth   string
	Body   []byte
}

// Server is an httptest server answering registered paths.
type Server struct {
	server *httptest.Server

	mu        sync.Mutex
	responses map[string]Response
	requests  []Request
}

// NewServer starts a fake upstream. Unregistered paths return 404.
func NewServer() *Server {
	s := &Server{responses: make(map[string]Response)}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL is the endpoint URL to store on a deployment.
func (s *Server) URL() string {
	return s.server.URL
}

// Close stops the server.
func (s *Server) Close() {
	s.server.Close()
}

// Handle registers the reply for path.
func (s *Server) Handle(path string, resp Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[path] = resp
}

// Requests returns a copy of everything received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		APIKey: r.Header.Get("api-key"),
		Auth:   r.Header.Get("Authorization"),
		Body:   body,
	})
	resp, ok := s.responses[r.URL.Path]
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	if len(resp.StreamChunks) > 0 {
		stream(w, resp.StreamChunks)
		return
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	switch v := resp.Body.(type) {
	case nil:
	case string:
		_, _ = io.WriteString(w, v)
	case []byte:
		_, _ = w.Write(v)
	default:
		_ = json.NewEncoder(w).Encode(v)
	}
}

func stream(w http.ResponseWriter, chunks []string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, _ := w.(http.Flusher)
	for _, c := range chunks {
		fmt.Fprintf(w, "data: %s\n\n", c)
		if flusher != nil {
			flusher.Flush()
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

// ChatCompletion is a chat completion body carrying a usage block.
func ChatCompletion(content string, prompt, completion int) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-123",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   "gpt-4o",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{
			"prompt_tokens":     prompt,
			"completion_tokens": completion,
			"total_tokens":      prompt + completion,
		},
	}
}

// ChatChunk is one streamed chat completion delta.
func ChatChunk(delta, finishReason string) string {
	chunk := map[string]any{
		"id":      "chatcmpl-123",
		"object":  "chat.completion.chunk",
		"created": time.Now().Unix(),
		"model":   "gpt-4o",
		"choices": []map[string]any{{
			"index":         0,
			"delta":         map[string]any{"content": delta},
			"finish_reason": finishReason,
		}},
	}
	b, _ := json.Marshal(chunk)
	return string(b)
}

// Error is an upstream error reply in the Azure OpenAI shape.
func Error(status int, message string) Response {
	return Response{
		StatusCode: status,
		Body: map[string]any{
			"error": map[string]any{"code": fmt.Sprint(status), "message": message},
		},
	}
}
