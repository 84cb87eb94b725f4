package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rhuss/relais/pkg/api"
)

// maxErrorBody caps how much of an upstream error body is carried in
// the returned error.
const maxErrorBody = 8 * 1024

// mapHTTPError converts a non-2xx upstream response into a
// BridgeError carrying the status and raw body. Upstream errors are
// surfaced, not masked, and never retried.
func mapHTTPError(resp *http.Response) *api.BridgeError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	message := strings.TrimSpace(string(body))
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return api.NewTransportError(resp.StatusCode, message)
}

// mapNetworkError converts a connection-level failure into a
// BridgeError. Context cancellation keeps its identity so callers can
// distinguish a deliberate stop from an upstream fault.
func mapNetworkError(err error) *api.BridgeError {
	switch {
	case errors.Is(err, context.Canceled):
		return api.NewTransportError(0, "request cancelled")
	case errors.Is(err, context.DeadlineExceeded):
		return api.NewTransportError(0, "request timed out")
	default:
		return api.NewTransportError(0, "connecting to upstream: "+err.Error())
	}
}
