package tracing

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Sampling strategies accepted in telemetry.tracing.sampler.
const (
	SamplerAlways = "always"
	SamplerNever  = "never"
	SamplerRatio  = "ratio"
)

// probePaths are the default operator endpoints. Root spans for them are
// never sampled; probes would otherwise dominate the trace volume.
var probePaths = []string{"/health", "/ready", "/version", "/metrics"}

// newSampler builds the parent-based sampler for strategy, dropping root
// spans whose url.path is one of skip.
func newSampler(strategy string, ratio float64, skip ...string) (sdktrace.Sampler, error) {
	var root sdktrace.Sampler
	switch strategy {
	case SamplerAlways:
		root = sdktrace.AlwaysSample()
	case SamplerNever:
		root = sdktrace.NeverSample()
	case SamplerRatio:
		if ratio < 0 || ratio > 1 {
			return nil, fmt.Errorf("sample ratio must be between 0.0 and 1.0, got %f", ratio)
		}
		root = sdktrace.TraceIDRatioBased(ratio)
	default:
		return nil, fmt.Errorf("unknown sampler strategy %q (valid: always, never, ratio)", strategy)
	}

	if len(skip) > 0 {
		set := make(map[string]struct{}, len(skip))
		for _, p := range skip {
			set[p] = struct{}{}
		}
		root = pathFilter{next: root, skip: set}
	}
	return sdktrace.ParentBased(root), nil
}

// pathFilter drops spans by their url.path attribute.
type pathFilter struct {
	next sdktrace.Sampler
	skip map[string]struct{}
}

func (f pathFilter) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	for _, kv := range p.Attributes {
		if kv.Key != attribute.Key("url.path") {
			continue
		}
		if _, ok := f.skip[kv.Value.AsString()]; ok {
			return sdktrace.SamplingResult{
				Decision:   sdktrace.Drop,
				Tracestate: trace.SpanContextFromContext(p.ParentContext).TraceState(),
			}
		}
		break
	}
	return f.next.ShouldSample(p)
}

func (f pathFilter) Description() string {
	return "PathFilter{" + f.next.Description() + "}"
}
