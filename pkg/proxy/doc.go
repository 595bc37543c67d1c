// Package proxy holds the HTTP plumbing shared by the gateway's routes:
// reading bounded request bodies, extracting credentials, filtering the
// forwarded query string, per-request metadata, and writing the uniform
// {code, message} error body.
//
// # Error Handling
//
// Every layer returns *gateway.Error values or wraps store and routing
// errors. HandleError maps them to a status and caller-safe message:
//
//	gateway.Error                    -> Kind status, Message
//	routing.DeploymentNotFoundError  -> 404 listing available deployments
//	store.ErrNotFound                -> 404
//	store.ErrConflict                -> 409 "conflict, please retry"
//	anything else                    -> 500 generic message
//
// Causes are logged by WriteError and never echoed.
//
// # Request Metadata
//
// The request ID middleware stores a *RequestMetadata in the request
// context. Handlers record the dialect, deployment and upstream status on it
// and the logging and metrics middleware read it after the handler returns:
//
//	md := proxy.MetadataFromContext(r.Context())
//	md.DeploymentName = dep.DeploymentName
//
// Subpackages:
//
//   - dialect: upstream templates, one per inbound dialect
//   - handlers: route handlers and the generic dialect pipeline
//   - middleware: request ID, logging, recovery, CORS, rate gate, metrics
//   - types: JSON bodies of the gateway's own routes
package proxy
