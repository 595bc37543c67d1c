// Package middleware provides HTTP middleware for cross-cutting concerns.
//
// # Middleware Chain
//
// The server installs the global chain outermost first:
//
//	r.Use(Recovery, RequestID, tracing.Middleware, Logging, Metrics(c), CORS(&cfg.Server.CORS))
//
// Authenticated route groups add, after the auth middleware:
//
//	r.Use(RateGate)
//
// # Request Metadata
//
// RequestID creates the proxy.RequestMetadata of each request. Handlers
// fill in the dialect, deployment and upstream status; Logging and Metrics
// read them back after the handler returns.
//
// # Rate Gate
//
// RateGate answers 429 for a caller whose daily request cap is spent. The
// check happens before catalog resolution so a capped caller costs no
// lookup and no upstream call. Status routes such as /eventinfo are
// mounted beside the gated group, never matched by path here:
//
//	{"code": 429, "message": "The event daily request rate of 100 calls has been exceeded. Requests are disabled until UTC midnight."}
//
// # Recovery
//
// Recovery converts a handler panic into the uniform 500 body. The stack
// trace is logged but not exposed to clients.
package middleware
