// Package transport serves the relais bridge's outward HTTP API.
//
// Clients speak a line-oriented streaming chat contract: POST /api/chat
// returns NDJSON, one JSON message object per line, flushed as each
// upstream token arrives; the final object carries "done": true. A
// non-streaming mode collects the deltas into a single message.
//
// The handler is decoupled from the upstream bridging logic through the
// Engine interface. Middleware provides panic recovery, request ID
// assignment (X-Request-ID), and structured request logging via log/slog;
// metrics and inbound auth middleware live in pkg/observability and
// pkg/auth respectively and are composed in cmd/relais.
package transport
