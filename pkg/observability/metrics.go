// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the relais bridge.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts all HTTP requests by method, status class, and path.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relais_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "path"},
	)

	// RequestDuration records HTTP request duration in seconds by method and path.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relais_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method", "path"},
	)

	// StreamingConnections tracks the number of active streamed responses.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relais_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// UpstreamRequestsTotal counts requests sent to the upstream backend.
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relais_upstream_requests_total",
			Help: "Upstream requests",
		},
		[]string{"status"},
	)

	// UpstreamLatency records time to the upstream response header in seconds.
	UpstreamLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relais_upstream_latency_seconds",
			Help:    "Upstream response latency",
			Buckets: LLMBuckets,
		},
	)

	// FramesTotal counts logical frames by decode outcome (ok, malformed).
	FramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relais_frames_total",
			Help: "Logical frames processed",
		},
		[]string{"outcome"},
	)

	// TokensTotal counts tokens reported by the upstream, by direction
	// (input/output).
	TokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relais_tokens_total",
			Help: "Token count",
		},
		[]string{"direction"},
	)

	// CredentialRenewalsTotal counts credential exchanges by outcome
	// (success, failure).
	CredentialRenewalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relais_credential_renewals_total",
			Help: "Credential renewal exchanges",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		UpstreamRequestsTotal,
		UpstreamLatency,
		FramesTotal,
		TokensTotal,
		CredentialRenewalsTotal,
	)
}
