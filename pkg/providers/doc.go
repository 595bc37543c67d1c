// Package providers forwards prepared calls to upstream deployments.
//
// # Overview
//
// A dialect adapter builds a Call (method, upstream URL, provider auth
// header, body) and hands it to the Forwarder, which owns the single pooled
// HTTP client of the process. The forwarder never retries; every transport
// failure is mapped to a 503 gateway error whose detail names the cause.
//
// # Buffered Calls
//
// Post bounds the whole call, including reading the body, by the upstream
// timeout. The body is metered exactly once before Post returns:
//
//	resp, err := fwd.Post(ctx, call)
//	if err != nil {
//	    proxy.WriteError(w, r, err)
//	    return
//	}
//
// # Streamed Calls
//
// PostStreaming bounds only the wait for response headers. It then mirrors
// the upstream status and content type, meters once with an empty usage, and
// copies the body chunk by chunk with a flush after each chunk. An optional
// StreamEncoder re-encodes the stream (SSE to NDJSON for Ollama clients).
// A caller disconnect cancels the upstream request.
//
// # Metering
//
// Metering runs on a context detached from the caller, so a disconnect after
// the upstream answered still produces exactly one usage record.
//
// # Tracing
//
// Each call runs in a client span and the W3C trace context is injected
// into the upstream request headers.
package providers
