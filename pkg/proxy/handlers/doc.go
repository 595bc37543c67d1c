// Package handlers provides the HTTP handlers of the gateway.
//
// # Dialect Handlers
//
// ProxyHandler serves every inference dialect through one pipeline driven
// by the templates of the dialect package:
//
//  1. Read the body (bounded by server.max_request_body_bytes)
//  2. Parse the stream flag, the requested max tokens and the target name
//  3. Reject a max tokens value above the event cap (400, no upstream call)
//  4. Resolve the target in the event catalog (404 listing alternatives)
//  5. Build the upstream URL, query string and auth header
//  6. Forward buffered or streamed; the forwarder meters the call
//
// Routes:
//   - AzureOpenAI: POST /openai/deployments/{deployment}/{operation}
//   - OpenAI: POST /chat/completions, /completions, /embeddings, /images/generations
//   - Search, SearchOData: POST /indexes/{index}/docs/search and the OData form
//   - OllamaChat, OllamaTags, OllamaPing: /api/chat, /api/tags, HEAD and GET /
//   - Inference: POST /models/chat/completions, /models/embeddings
//
// # Assistants
//
// AssistantsHandler proxies /openai/{assistants,threads,files} and records
// which API key created which object. A call addressing an object the key
// did not create is answered 404 without contacting the upstream, and list
// responses only include the caller's objects.
//
// # Events and Attendees
//
// EventHandler serves self-registration (principal auth), the eventinfo
// summary (api-key auth) and public event metadata (no auth).
//
// # Usage Feed
//
// FeedHandler streams metered usage records to operators over a WebSocket
// with ping keepalive. Slow readers lose records rather than slow metering.
//
// # Error Handling
//
// All handlers write failures through proxy.WriteError, which produces the
// uniform body:
//
//	{"code": 404, "message": "Assistant not found."}
package handlers
