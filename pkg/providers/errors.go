package providers

import (
	"context"
	"errors"
	"net"

	"mercator-hq/eventgate/pkg/gateway"
)

// Upstream outcomes used as metric labels.
const (
	OutcomeOK                = "ok"
	OutcomeHTTPError         = "http_error"
	OutcomeTimeout           = "timeout"
	OutcomeCanceled          = "canceled"
	OutcomeConnectionError   = "connection_error"
	OutcomeStreamInterrupted = "stream_interrupted"
)

// Details of the 503 errors returned by the forwarder.
const (
	DetailTimeout        = "upstream request timed out"
	DetailCanceled       = "request canceled by client"
	DetailConnection     = "upstream connection failed"
	DetailResponseTooBig = "upstream response too large"
)

// classify maps a transport failure to an outcome and a 503 error. parent
// is the caller's context; timedOut reports whether the forwarder's own
// deadline fired.
func classify(parent context.Context, err error, timedOut bool) (string, *gateway.Error) {
	switch {
	case parent.Err() != nil && !timedOut:
		return OutcomeCanceled, gateway.Unavailable(DetailCanceled, err)
	case timedOut || errors.Is(err, context.DeadlineExceeded) || isNetTimeout(err):
		return OutcomeTimeout, gateway.Unavailable(DetailTimeout, err)
	default:
		return OutcomeConnectionError, gateway.Unavailable(DetailConnection, err)
	}
}

func isNetTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
