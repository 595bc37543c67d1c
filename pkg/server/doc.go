/*
Package server wires the gateway's chi router and runs the HTTP listener.

# Route Layout

Operator routes live at the root:

	GET  /health, /ready, /version   health checker
	GET  /metrics                    Prometheus registry
	GET  /admin/usage/stream         live usage feed (admin key, WebSocket)

Everything else is mounted under server.base_path (default /api/v1):

	GET  /event/{eventId}                          public, no auth
	POST /attendee/event/{eventId}/register        client principal
	GET  /attendee/event/{eventId}                 client principal
	POST /eventinfo                                api-key
	POST /openai/deployments/{deployment}/{op}     api-key
	POST /indexes/{index}/docs/search              api-key
	*    /openai/{assistants,threads,files}[/...]  api-key
	POST /chat/completions, /embeddings, ...       bearer or api-key
	POST /models/chat/completions, ...             bearer or api-key
	POST /api/chat, GET /api/tags                  bearer or api-key (Ollama)
	HEAD|GET /                                     public Ollama probe

Authenticated groups run the rate gate after authentication, so a caller
whose daily cap is spent gets 429 before any catalog lookup. /eventinfo
and /api/tags are mounted beside the gate and stay reachable.

# Lifecycle

	srv := server.New(cfg, deps, tlsConfig)
	if err := srv.Start(ctx); err != nil {
		return err
	}

Start blocks until ctx is canceled, then drains in-flight requests for up
to server.shutdown_timeout.
*/
package server
