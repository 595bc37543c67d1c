package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"mercator-hq/eventgate/pkg/config"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  *config.TracingConfig
		wantErr bool
	}{
		{"nil config", nil, true},
		{"disabled", &config.TracingConfig{Enabled: false, ServiceName: "eventgate"}, false},
		{"bad sampler", &config.TracingConfig{Enabled: true, Sampler: "sometimes", Endpoint: "localhost:4317"}, true},
		{"bad ratio", &config.TracingConfig{Enabled: true, Sampler: "ratio", SampleRatio: 2, Endpoint: "localhost:4317"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := New(tt.config, "test")
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				if tr.Enabled() {
					t.Error("disabled config should yield a disabled tracer")
				}
				if err := tr.Shutdown(context.Background()); err != nil {
					t.Errorf("Shutdown() error = %v", err)
				}
			}
		})
	}
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		strategy string
		ratio    float64
		wantErr  bool
	}{
		{SamplerAlways, 0, false},
		{SamplerNever, 0, false},
		{SamplerRatio, 0.25, false},
		{SamplerRatio, -0.1, true},
		{"random", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			_, err := newSampler(tt.strategy, tt.ratio)
			if (err != nil) != tt.wantErr {
				t.Errorf("newSampler() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSamplerDropsProbes(t *testing.T) {
	sampler, err := newSampler(SamplerAlways, 0, probePaths...)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path string
		want sdktrace.SamplingDecision
	}{
		{"/health", sdktrace.Drop},
		{"/metrics", sdktrace.Drop},
		{"/api/v1/chat/completions", sdktrace.RecordAndSample},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			res := sampler.ShouldSample(sdktrace.SamplingParameters{
				ParentContext: context.Background(),
				Name:          "POST " + tt.path,
				Kind:          trace.SpanKindServer,
				Attributes:    []attribute.KeyValue{attribute.String("url.path", tt.path)},
			})
			if res.Decision != tt.want {
				t.Errorf("decision = %v, want %v", res.Decision, tt.want)
			}
		})
	}
}

func TestMiddlewareAndInject(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tr := NewWithExporter(exporter)
	defer tr.Shutdown(context.Background())

	var injected http.Header
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		injected = http.Header{}
		Inject(r.Context(), injected)
		if TraceID(r.Context()) == "" {
			t.Error("expected a trace id inside the server span")
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/completions", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	h.ServeHTTP(httptest.NewRecorder(), req)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("exported %d spans, want 1", len(spans))
	}
	span := spans[0]
	if span.SpanKind != trace.SpanKindServer {
		t.Errorf("span kind = %v", span.SpanKind)
	}
	if got := span.SpanContext.TraceID().String(); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace id = %s, want the inbound trace", got)
	}
	if span.Status.Code != codes.Error {
		t.Errorf("status = %v, want error for a 503", span.Status.Code)
	}
	if tp := injected.Get("traceparent"); len(tp) != 55 || tp[3:35] != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("injected traceparent = %q", tp)
	}
}

func TestSetError(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tr := NewWithExporter(exporter)
	defer tr.Shutdown(context.Background())

	_, span := tr.Start(context.Background(), "upstream")
	SetError(span, nil)
	SetError(span, errors.New("connection refused"))
	SetUpstreamAttributes(span, http.MethodPost, "example.openai.azure.com", 0, "connection_error")
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 || spans[0].Status.Code != codes.Error {
		t.Fatalf("spans = %+v", spans)
	}
	if len(spans[0].Events) != 1 {
		t.Errorf("expected one recorded exception event, got %d", len(spans[0].Events))
	}
}
