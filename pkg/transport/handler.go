package transport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rhuss/relais/pkg/api"
	"github.com/rhuss/relais/pkg/auth"
	"github.com/rhuss/relais/pkg/usage"
)

const defaultMaxBodySize = 10 * 1024 * 1024 // 10 MB

// Handler serves the bridge HTTP API. Chat responses stream as NDJSON:
// one JSON-encoded api.Message per line, flushed as soon as it is
// produced, terminated by the single message with done=true.
type Handler struct {
	engine      Engine
	usageStore  usage.Store
	logger      *slog.Logger
	maxBodySize int64
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithUsageStore attaches a usage ledger. When set, the handler records
// one usage entry per completed chat request and serves GET /api/usage.
func WithUsageStore(store usage.Store) HandlerOption {
	return func(h *Handler) { h.usageStore = store }
}

// WithLogger sets the handler's logger.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) { h.logger = logger }
}

// WithMaxBodySize overrides the request body size limit in bytes.
func WithMaxBodySize(n int64) HandlerOption {
	return func(h *Handler) { h.maxBodySize = n }
}

// NewHandler creates a Handler backed by the given engine.
func NewHandler(engine Engine, opts ...HandlerOption) *Handler {
	h := &Handler{
		engine:      engine,
		logger:      slog.Default(),
		maxBodySize: defaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register attaches the handler's routes to the given mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.handleChat)
	mux.HandleFunc("GET /api/models", h.handleModels)
	mux.HandleFunc("GET /api/usage", h.handleUsage)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, h.maxBodySize)
	defer body.Close()

	var req api.ChatRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteBridgeError(w, api.NewInvalidRequestError("request body too large"))
			return
		}
		WriteBridgeError(w, api.NewInvalidRequestError("invalid request body: "+err.Error()))
		return
	}
	if len(req.Messages) == 0 {
		WriteBridgeError(w, api.NewInvalidRequestError("messages must not be empty"))
		return
	}

	messages, err := h.engine.Stream(r.Context(), &req)
	if err != nil {
		h.logger.Error("chat request failed",
			"request_id", RequestIDFromContext(r.Context()),
			"error", err,
		)
		WriteBridgeError(w, api.AsBridgeError(err))
		return
	}

	if req.Streaming() {
		h.streamChat(w, r, &req, messages)
	} else {
		h.collectChat(w, r, &req, messages)
	}
}

// streamChat writes one JSON message per line, flushing after each so
// the client sees deltas as they arrive. Once the first line is out the
// HTTP status is committed; later failures surface as an error line
// followed by termination, never as a retraction.
func (h *Handler) streamChat(w http.ResponseWriter, r *http.Request, req *api.ChatRequest, messages <-chan api.Message) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	for msg := range messages {
		if err := enc.Encode(msg); err != nil {
			// Client went away; drain the channel so the engine's
			// pump goroutine can finish.
			for range messages {
			}
			return
		}
		rc.Flush()
		if msg.Done {
			h.recordUsage(r, req, &msg)
		}
	}
}

// collectChat consumes the whole stream and responds with the
// accumulated result as a single JSON message.
func (h *Handler) collectChat(w http.ResponseWriter, r *http.Request, req *api.ChatRequest, messages <-chan api.Message) {
	var content strings.Builder
	var final api.Message
	for msg := range messages {
		content.WriteString(msg.Content)
		if msg.Done {
			final = msg
		}
	}
	if final.Err != nil {
		WriteBridgeError(w, final.Err)
		return
	}
	final.Content = content.String()
	h.recordUsage(r, req, &final)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(final)
}

// recordUsage appends one ledger entry for a completed request. Failures
// are logged and do not affect the response.
func (h *Handler) recordUsage(r *http.Request, req *api.ChatRequest, final *api.Message) {
	if h.usageStore == nil || final.Usage == nil {
		return
	}
	rec := usage.Record{
		ID:               RequestIDFromContext(r.Context()),
		Model:            req.Model,
		PromptTokens:     final.Usage.PromptTokens,
		CompletionTokens: final.Usage.CompletionTokens,
		TotalTokens:      final.Usage.TotalTokens,
		CreatedAt:        time.Now().UTC(),
	}
	if final.Model != "" {
		rec.Model = final.Model
	}
	if id := auth.IdentityFromContext(r.Context()); id != nil {
		rec.Subject = id.Subject
	}
	if err := h.usageStore.Save(r.Context(), rec); err != nil {
		h.logger.Warn("usage record not saved", "id", rec.ID, "error", err)
	}
}

func (h *Handler) handleModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.engine.ListModels(r.Context())
	if err != nil {
		h.logger.Error("model listing failed",
			"request_id", RequestIDFromContext(r.Context()),
			"error", err,
		)
		WriteBridgeError(w, api.AsBridgeError(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]api.ModelInfo{"models": models})
}

func (h *Handler) handleUsage(w http.ResponseWriter, r *http.Request) {
	if h.usageStore == nil {
		WriteBridgeError(w, api.NewInvalidRequestError("usage tracking is not enabled"))
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			WriteBridgeError(w, api.NewInvalidRequestError("limit must be a positive integer"))
			return
		}
		limit = n
	}
	records, err := h.usageStore.Recent(r.Context(), limit)
	if err != nil {
		WriteBridgeError(w, api.NewServerError("usage lookup failed"))
		return
	}
	if records == nil {
		records = []usage.Record{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]usage.Record{"records": records})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	if h.usageStore != nil {
		if err := h.usageStore.HealthCheck(r.Context()); err != nil {
			status["status"] = "degraded"
			status["usage"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}
