package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rhuss/relais/pkg/api"
)

// DefaultBypassEndpoints lists endpoints that skip authentication.
var DefaultBypassEndpoints = []string{"/healthz", "/metrics"}

// Middleware gates a handler behind the chain and an optional limiter.
// Exact-path matches against bypassEndpoints skip both. On success the
// identity rides the request context for usage attribution downstream.
func Middleware(chain *Chain, limiter RateLimiter, bypassEndpoints []string) func(http.Handler) http.Handler {
	bypass := make(map[string]bool, len(bypassEndpoints))
	for _, ep := range bypassEndpoints {
		bypass[ep] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			res := chain.Authenticate(r.Context(), r)
			if res.Decision != Allow || res.Identity == nil || res.Identity.Subject == "" {
				if res.Err != nil {
					slog.Warn("caller rejected",
						"path", r.URL.Path,
						"remote_addr", r.RemoteAddr,
						"error", res.Err,
					)
				}
				writeDenied(w, http.StatusUnauthorized,
					api.NewAuthenticationError("authentication required"))
				return
			}

			if limiter != nil {
				if err := limiter.Allow(r.Context(), res.Identity); err != nil {
					slog.Warn("caller over budget", "subject", res.Identity.Subject)
					writeDenied(w, http.StatusTooManyRequests,
						api.NewRateLimitedError("request budget exceeded"))
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), res.Identity)))
		})
	}
}

// writeDenied emits the bridge's standard error envelope.
func writeDenied(w http.ResponseWriter, status int, bridgeErr *api.BridgeError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(struct {
		Error *api.BridgeError `json:"error"`
	}{bridgeErr})
}
