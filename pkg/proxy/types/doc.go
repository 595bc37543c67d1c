// Package types defines the JSON bodies exchanged on the gateway's own
// routes: the uniform error body, the attendee and event endpoints, and the
// Ollama-compatible chat and tag listing shapes.
//
// Upstream request and response bodies are not modelled here. They pass
// through the dialect templates as raw JSON and only the fields the gateway
// reads or rewrites are touched.
package types
