package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// MetricsMiddleware wraps an HTTP handler to record request metrics.
//
// It captures:
//   - relais_requests_total (counter): per request with method, status class, and path labels
//   - relais_request_duration_seconds (histogram): request duration with method and path labels
//   - relais_streaming_connections_active (gauge): incremented while a streamed response is in flight
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()

		// Collapse paths with IDs or suffixes into their route prefix to
		// keep label cardinality bounded.
		path := routeLabel(r.URL.Path)

		statusStr := strconv.Itoa(sw.status/100) + "xx"

		RequestsTotal.WithLabelValues(r.Method, statusStr, path).Inc()
		RequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routeLabel maps a request path to a bounded metric label.
func routeLabel(path string) string {
	for _, known := range []string{"/api/chat", "/api/models", "/api/usage", "/healthz", "/metrics"} {
		if path == known || strings.HasPrefix(path, known+"/") {
			return known
		}
	}
	return "other"
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

// WriteHeader captures the status code and delegates to the underlying writer.
func (w *statusWriter) WriteHeader(status int) {
	if !w.written {
		w.status = status
		w.written = true
	}
	w.ResponseWriter.WriteHeader(status)
}

// Write delegates to the underlying writer and marks the status as written.
func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}

// Flush delegates to the underlying writer if it implements http.Flusher.
// Required for incremental NDJSON delivery.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying ResponseWriter, enabling
// http.ResponseController to reach the original writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
