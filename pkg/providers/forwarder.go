package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/eventgate/pkg/config"
	"mercator-hq/eventgate/pkg/gateway"
	"mercator-hq/eventgate/pkg/telemetry/metrics"
	"mercator-hq/eventgate/pkg/telemetry/tracing"
)

const (
	defaultTimeout          = 60 * time.Second
	defaultMaxResponseBytes = 16 * 1024 * 1024
	streamBufferSize        = 32 * 1024
)

// Forwarder executes upstream calls over one pooled HTTP client.
type Forwarder struct {
	client           *http.Client
	timeout          time.Duration
	maxResponseBytes int64
	meter            Meter
	metrics          *metrics.Collector
	tracer           trace.Tracer
	logger           *slog.Logger
}

// New creates a forwarder with the pooled transport settings of cfg. meter
// receives exactly one record per call that reached the upstream.
func New(cfg *config.UpstreamConfig, meter Meter, collector *metrics.Collector) *Forwarder {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}
	return NewWithClient(&http.Client{Transport: transport}, cfg, meter, collector)
}

// NewWithClient creates a forwarder using client. The client must not set
// its own Timeout; the forwarder applies the configured bounds per call.
func NewWithClient(client *http.Client, cfg *config.UpstreamConfig, meter Meter, collector *metrics.Collector) *Forwarder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxBytes := cfg.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxResponseBytes
	}
	return &Forwarder{
		client:           client,
		timeout:          timeout,
		maxResponseBytes: maxBytes,
		meter:            meter,
		metrics:          collector,
		tracer:           otel.Tracer(tracing.InstrumentationName),
		logger:           slog.Default().With("component", "forwarder"),
	}
}

// Post performs a buffered call. The timeout covers the whole call
// including the body read. A metering failure is logged and counted by the
// meter but does not fail the call.
func (f *Forwarder) Post(ctx context.Context, call *Call) (*Response, error) {
	start := time.Now()
	ctx, span := f.tracer.Start(ctx, "upstream "+call.Dialect, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := f.newRequest(callCtx, call)
	if err != nil {
		return nil, gateway.Internal(err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, f.fail(ctx, callCtx, call, req, span, start, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxResponseBytes+1))
	if err != nil {
		return nil, f.fail(ctx, callCtx, call, req, span, start, err)
	}
	if int64(len(body)) > f.maxResponseBytes {
		f.finish(call, req, span, start, resp.StatusCode, OutcomeConnectionError)
		return nil, gateway.Unavailable(DetailResponseTooBig, fmt.Errorf("body exceeds %d bytes", f.maxResponseBytes))
	}

	f.finish(call, req, span, start, resp.StatusCode, outcomeForStatus(resp.StatusCode))
	f.record(ctx, call, body)

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// PostStreaming performs a streamed call and copies the response to w. The
// timeout covers the call only until response headers arrive. An error is
// returned only when nothing has been written to w; failures after the
// headers are logged and end the copy.
func (f *Forwarder) PostStreaming(ctx context.Context, call *Call, w http.ResponseWriter, enc StreamEncoder) error {
	start := time.Now()
	ctx, span := f.tracer.Start(ctx, "upstream "+call.Dialect, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var timedOut atomic.Bool
	timer := time.AfterFunc(f.timeout, func() {
		timedOut.Store(true)
		cancel()
	})

	req, err := f.newRequest(callCtx, call)
	if err != nil {
		timer.Stop()
		return gateway.Internal(err)
	}

	resp, err := f.client.Do(req)
	if !timer.Stop() && err == nil {
		// headers arrived as the deadline fired; the body is already cancelled
		resp.Body.Close()
		err = context.DeadlineExceeded
	}
	if err != nil {
		outcome, gwErr := classify(ctx, err, timedOut.Load())
		f.finish(call, req, span, start, 0, outcome)
		tracing.SetError(span, err)
		return gwErr
	}
	defer resp.Body.Close()

	useEncoder := enc != nil && resp.StatusCode < http.StatusBadRequest
	contentType := resp.Header.Get("Content-Type")
	if useEncoder {
		contentType = enc.ContentType()
	}
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(resp.StatusCode)

	rc := http.NewResponseController(w)
	_ = rc.Flush()

	// streamed usage is not observable
	f.record(ctx, call, nil)

	outcome := outcomeForStatus(resp.StatusCode)
	if err := f.copyStream(callCtx, w, rc, resp.Body, enc, useEncoder); err != nil {
		outcome = OutcomeStreamInterrupted
		if ctx.Err() != nil {
			outcome = OutcomeCanceled
		}
		f.logger.WarnContext(ctx, "stream ended early",
			"dialect", call.Dialect,
			"catalog_id", call.CatalogID,
			"error", err,
		)
	}
	f.finish(call, req, span, start, resp.StatusCode, outcome)
	return nil
}

func (f *Forwarder) copyStream(ctx context.Context, w io.Writer, rc *http.ResponseController, body io.Reader, enc StreamEncoder, useEncoder bool) error {
	buf := make([]byte, streamBufferSize)
	write := func(p []byte) error {
		if len(p) == 0 {
			return nil
		}
		if _, err := w.Write(p); err != nil {
			return fmt.Errorf("write to client: %w", err)
		}
		// a writer without flush support still receives every byte
		_ = rc.Flush()
		return nil
	}

	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			out := buf[:n]
			if useEncoder {
				var err error
				if out, err = enc.Encode(buf[:n]); err != nil {
					return fmt.Errorf("encode stream: %w", err)
				}
			}
			if err := write(out); err != nil {
				return err
			}
		}

		if errors.Is(readErr, io.EOF) {
			if useEncoder {
				tail, err := enc.Close()
				if err != nil {
					return fmt.Errorf("encode stream: %w", err)
				}
				return write(tail)
			}
			return nil
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("read upstream: %w", ctx.Err())
			}
			return fmt.Errorf("read upstream: %w", readErr)
		}
	}
}

func (f *Forwarder) newRequest(ctx context.Context, call *Call) (*http.Request, error) {
	var body io.Reader
	if call.Body != nil {
		body = bytes.NewReader(call.Body)
	}

	req, err := http.NewRequestWithContext(ctx, call.method(), call.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream request: %w", err)
	}
	for key, values := range call.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if call.Body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	tracing.Inject(ctx, req.Header)
	return req, nil
}

func (f *Forwarder) fail(parent, callCtx context.Context, call *Call, req *http.Request, span trace.Span, start time.Time, err error) error {
	timedOut := parent.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded)
	outcome, gwErr := classify(parent, err, timedOut)
	f.finish(call, req, span, start, 0, outcome)
	tracing.SetError(span, err)

	f.logger.WarnContext(parent, "upstream call failed",
		"dialect", call.Dialect,
		"catalog_id", call.CatalogID,
		"host", req.URL.Host,
		"outcome", outcome,
		"error", err,
	)
	return gwErr
}

func (f *Forwarder) finish(call *Call, req *http.Request, span trace.Span, start time.Time, status int, outcome string) {
	tracing.SetUpstreamAttributes(span, req.Method, req.URL.Host, status, outcome)
	f.metrics.RecordUpstream(call.Dialect, outcome, time.Since(start))
}

func (f *Forwarder) record(ctx context.Context, call *Call, body []byte) {
	if f.meter == nil {
		return
	}
	// The sink logs and counts its own failures.
	_ = f.meter.Record(context.WithoutCancel(ctx), call.APIKey, call.EventID, call.CatalogID, body)
}

// Close releases idle pooled connections.
func (f *Forwarder) Close() {
	f.client.CloseIdleConnections()
}

func outcomeForStatus(status int) string {
	if status >= http.StatusBadRequest {
		return OutcomeHTTPError
	}
	return OutcomeOK
}
