package transport

import (
	"encoding/json"
	"net/http"

	"github.com/rhuss/relais/pkg/api"
)

// errorResponse is the JSON envelope for non-streaming error replies.
type errorResponse struct {
	Error *api.BridgeError `json:"error"`
}

// HTTPStatusFromError maps a BridgeError to the HTTP status the bridge
// reports to its caller. Upstream transport failures are reported as a
// bad gateway regardless of the upstream's own status; the upstream
// status and body stay visible inside the error payload.
func HTTPStatusFromError(err *api.BridgeError) int {
	switch err.Type {
	case api.ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case api.ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case api.ErrorTypeRateLimited:
		return http.StatusTooManyRequests
	case api.ErrorTypeTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse writes a JSON error response with the given status.
func WriteErrorResponse(w http.ResponseWriter, bridgeErr *api.BridgeError, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(errorResponse{Error: bridgeErr})
}

// WriteBridgeError writes a BridgeError response, deriving the HTTP
// status code from the error type.
func WriteBridgeError(w http.ResponseWriter, bridgeErr *api.BridgeError) {
	WriteErrorResponse(w, bridgeErr, HTTPStatusFromError(bridgeErr))
}
