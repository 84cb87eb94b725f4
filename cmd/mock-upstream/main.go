// Command mock-upstream runs a deterministic stand-in for the token
// endpoint and the upstream Chat Completions service, for local
// development and conformance testing of the bridge.
//
// It serves:
//
//	GET  /token                - token exchange, requires "Authorization: token <artifact>"
//	POST /v1/chat/completions  - canned SSE streams
//	GET  /v1/models            - a small model catalog
//	GET  /healthz              - liveness
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func main() {
	port := flag.Int("port", 9090, "listen port")
	artifact := flag.String("artifact", "mock-artifact", "authorization artifact the token endpoint accepts")
	ttl := flag.Duration("ttl", 30*time.Minute, "lifetime of minted credentials")
	flag.Parse()

	srv := newMockServer(*port, *artifact, *ttl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock upstream starting", "port", *port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock upstream failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock upstream shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

func newMockServer(port int, artifact string, ttl time.Duration) *http.Server {
	m := &mock{artifact: artifact, ttl: ttl, port: port}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /token", m.handleToken)
	mux.HandleFunc("POST /v1/chat/completions", m.handleChatCompletions)
	mux.HandleFunc("GET /v1/models", m.handleModels)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	return &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
}

type mock struct {
	artifact string
	ttl      time.Duration
	port     int
}

// --- Token exchange ---

func (m *mock) handleToken(w http.ResponseWriter, r *http.Request) {
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "token ")
	if !ok || got != m.artifact {
		http.Error(w, `{"error":"invalid artifact"}`, http.StatusUnauthorized)
		return
	}

	resp := map[string]any{
		"token":      fmt.Sprintf("mock-credential-%d", time.Now().Unix()),
		"expires_at": time.Now().Add(m.ttl).Unix(),
		"endpoints": map[string]string{
			"api": fmt.Sprintf("http://localhost:%d/v1", m.port),
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// --- Chat Completions ---

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []any         `json:"tools,omitempty"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (m *mock) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer mock-credential-") {
		http.Error(w, `{"error":"invalid credential"}`, http.StatusUnauthorized)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request"}`, http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	model := req.Model
	if model == "" {
		model = "mock-model"
	}

	writeChunk(w, roleChunk(model))
	flusher.Flush()

	if len(req.Tools) > 0 {
		m.streamToolCall(w, flusher, model)
		return
	}

	tokens := []string{"Hi", " there", "!"}
	if msg := lastUserMessage(&req); strings.Contains(strings.ToLower(msg), "count") {
		tokens = []string{"1", ", ", "2", ", ", "3"}
	}
	for _, token := range tokens {
		writeChunk(w, contentChunk(model, token))
		flusher.Flush()
	}

	writeChunk(w, finishChunk(model, "stop", len(tokens)))
	flusher.Flush()
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// streamToolCall emits a tool call whose arguments arrive in several
// fragments, the way real backends deliver them.
func (m *mock) streamToolCall(w http.ResponseWriter, flusher http.Flusher, model string) {
	fragments := []string{`{"location"`, `:"San Francisco"`, `,"unit":"celsius"}`}

	first := map[string]any{
		"index": 0,
		"id":    "call_mock_1",
		"type":  "function",
		"function": map[string]any{
			"name":      "get_weather",
			"arguments": "",
		},
	}
	writeChunk(w, toolChunk(model, first))
	flusher.Flush()

	for _, frag := range fragments {
		delta := map[string]any{
			"index":    0,
			"function": map[string]any{"arguments": frag},
		}
		writeChunk(w, toolChunk(model, delta))
		flusher.Flush()
	}

	writeChunk(w, finishChunk(model, "tool_calls", 15))
	flusher.Flush()
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func writeChunk(w http.ResponseWriter, chunk map[string]any) {
	data, _ := json.Marshal(chunk)
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func baseChunk(model string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-mock-stream",
		"object":  "chat.completion.chunk",
		"created": time.Now().Unix(),
		"model":   model,
	}
}

func roleChunk(model string) map[string]any {
	chunk := baseChunk(model)
	chunk["choices"] = []any{map[string]any{
		"index":         0,
		"delta":         map[string]any{"role": "assistant"},
		"finish_reason": nil,
	}}
	return chunk
}

func contentChunk(model, content string) map[string]any {
	chunk := baseChunk(model)
	chunk["choices"] = []any{map[string]any{
		"index":         0,
		"delta":         map[string]any{"content": content},
		"finish_reason": nil,
	}}
	return chunk
}

func toolChunk(model string, callDelta map[string]any) map[string]any {
	chunk := baseChunk(model)
	chunk["choices"] = []any{map[string]any{
		"index": 0,
		"delta": map[string]any{
			"tool_calls": []any{callDelta},
		},
		"finish_reason": nil,
	}}
	return chunk
}

func finishChunk(model, reason string, completionTokens int) map[string]any {
	chunk := baseChunk(model)
	chunk["choices"] = []any{map[string]any{
		"index":         0,
		"delta":         map[string]any{},
		"finish_reason": reason,
	}}
	chunk["usage"] = map[string]any{
		"prompt_tokens":     10,
		"completion_tokens": completionTokens,
		"total_tokens":      10 + completionTokens,
	}
	return chunk
}

// --- Models ---

func (m *mock) handleModels(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"data": []map[string]any{
			{"id": "mock-model", "name": "Mock Model", "vendor": "relais", "capabilities": map[string]string{"type": "chat"}},
			{"id": "mock-embed", "name": "Mock Embedder", "vendor": "relais", "capabilities": map[string]string{"type": "embeddings"}},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// --- Helpers ---

func lastUserMessage(req *chatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return req.Messages[i].Content
		}
	}
	return ""
}
