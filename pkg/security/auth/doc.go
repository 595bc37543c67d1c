/*
Package auth resolves inbound credentials to a per-request context.

# Credentials

Inference routes carry an opaque per-attendee API key, either in the
api-key header or as an Authorization bearer token depending on the
dialect. The attendee self-registration routes instead carry a base64 JSON
client principal with a userId, in the x-ms-client-principal header or as a
bearer token.

# Resolution

Resolver.Resolve consults a TTL cache first. On a miss the store performs
one authorization lookup covering attendee status, event activity and the
event time window. A key with no row is Unauthenticated and nothing is
cached. A row is cached for two minutes while the attendee has quota left
and for thirty seconds once the daily cap is exceeded. Every call builds a
fresh gateway.RequestContext from the cached snapshot, so per-request
mutation never leaks between requests.

Flush runs at UTC midnight so daily cap resets are visible immediately.

# Middleware

	authn := auth.NewMiddleware(resolver)
	r.With(authn.RequireAPIKey).Post("/eventinfo", handler)

	func handler(w http.ResponseWriter, r *http.Request) {
		rc, _ := gateway.FromContext(r.Context())
		...
	}

A request carrying an openai-event-code header that does not match the
resolved event (case-insensitively) is rejected with 403.

API key values are never logged.
*/
package auth
