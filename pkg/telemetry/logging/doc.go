// Package logging configures the process-wide structured logger.
//
// # Overview
//
// The gateway logs through log/slog. New builds a JSON or text handler and
// wraps it in Handler, which:
//   - Adds request_id and event_id from the request context
//   - Masks credentials when telemetry.logging.redact_secrets is set
//
// # Usage
//
//	logger, err := logging.Setup(logging.FromConfig(&cfg.Telemetry.Logging))
//
//	ctx = logging.WithRequestID(ctx, requestID)
//	slog.InfoContext(ctx, "attendee registered", "event_id", eventID)
//
// # Redaction
//
// Attributes named like a credential (api_key, api-key, endpoint_key,
// authorization, bearer, secret, token) keep a four character prefix:
//
//	api_key=0f3a***
//
// Credentials embedded in strings and errors are replaced by pattern:
//
//	sk-abc123xyz...         -> sk-***
//	Bearer eyJhbGciOi...    -> Bearer ***
//	api-key=1234abcd        -> api-key=***
package logging
