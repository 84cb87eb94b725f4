package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rhuss/relais/pkg/api"
	"github.com/rhuss/relais/pkg/credential"
)

// staticCreds is a CredentialSource that returns a fixed credential or
// error.
type staticCreds struct {
	cred credential.Credential
	err  error
}

func (s *staticCreds) EnsureValid(context.Context) (credential.Credential, error) {
	return s.cred, s.err
}

// collectMessages drains the stream channel.
func collectMessages(t *testing.T, ch <-chan api.Message) []api.Message {
	t.Helper()
	var msgs []api.Message
	for msg := range ch {
		msgs = append(msgs, msg)
	}
	return msgs
}

func sseServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			http.Error(w, "missing bearer", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		rc := http.NewResponseController(w)
		for _, f := range frames {
			w.Write([]byte(f + "\n\n"))
			rc.Flush()
		}
	}))
}

func TestStreamDeliversMessagesInOrder(t *testing.T) {
	srv := sseServer(t, []string{
		`data: {"model":"gpt-4","choices":[{"delta":{"role":"assistant"}}]}`,
		`data: {"choices":[{"delta":{"content":"Hi"}}]}`,
		`data: {"choices":[{"delta":{"content":" there"}}]}`,
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`,
		`data: [DONE]`,
	})
	defer srv.Close()

	c := NewClient(&staticCreds{cred: credential.Credential{Token: "test-token", Endpoint: srv.URL}}, 5*time.Second)
	ch, err := c.Stream(context.Background(), &api.ChatRequest{
		Model:    "gpt-4",
		Messages: []api.ChatMessage{{Role: "user", Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}

	msgs := collectMessages(t, ch)
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3: %+v", len(msgs), msgs)
	}
	if msgs[0].Content != "Hi" || msgs[1].Content != " there" {
		t.Errorf("content deltas out of order: %+v", msgs)
	}

	term := msgs[2]
	if !term.Done || term.Content != "" {
		t.Errorf("terminal = %+v", term)
	}
	if term.Usage == nil || term.Usage.TotalTokens != 5 {
		t.Errorf("terminal usage = %+v", term.Usage)
	}
}

func TestStreamNoCredentialNoNetworkCall(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := NewClient(&staticCreds{err: api.NewAuthenticationError("not signed in")}, 5*time.Second)
	_, err := c.Stream(context.Background(), &api.ChatRequest{Model: "gpt-4"})
	if !api.IsAuthentication(err) {
		t.Fatalf("Stream() error = %v, want authentication error", err)
	}
	if hits.Load() != 0 {
		t.Errorf("upstream was called %d times without a credential", hits.Load())
	}
}

func TestStreamUpstreamErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(&staticCreds{cred: credential.Credential{Token: "t", Endpoint: srv.URL}}, 5*time.Second)
	_, err := c.Stream(context.Background(), &api.ChatRequest{Model: "gpt-4"})

	be := api.AsBridgeError(err)
	if be.Type != api.ErrorTypeTransport {
		t.Fatalf("error type = %q, want transport", be.Type)
	}
	if be.Status != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", be.Status)
	}
	if be.Message != `{"error":"model overloaded"}` {
		t.Errorf("raw body not surfaced: %q", be.Message)
	}
}

func TestStreamTerminalAfterMissingSentinel(t *testing.T) {
	// Upstream closes without [DONE] and without a trailing separator;
	// the pending frame is flushed and a terminal is synthesized.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"tail\"}}]}"))
	}))
	defer srv.Close()

	c := NewClient(&staticCreds{cred: credential.Credential{Token: "t", Endpoint: srv.URL}}, 5*time.Second)
	ch, err := c.Stream(context.Background(), &api.ChatRequest{Model: "gpt-4"})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}

	msgs := collectMessages(t, ch)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want flushed delta plus terminal: %+v", len(msgs), msgs)
	}
	if msgs[0].Content != "tail" {
		t.Errorf("flushed frame content = %q", msgs[0].Content)
	}
	if !msgs[1].Done {
		t.Errorf("last message not terminal: %+v", msgs[1])
	}
}

func TestStreamToolCall(t *testing.T) {
	srv := sseServer(t, []string{
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_9","function":{"name":"get_weather","arguments":"{\"loc"}}]}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"ation\":\"Paris\"}"}}]}}]}`,
		`data: {"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		`data: [DONE]`,
	})
	defer srv.Close()

	c := NewClient(&staticCreds{cred: credential.Credential{Token: "test-token", Endpoint: srv.URL}}, 5*time.Second)
	ch, err := c.Stream(context.Background(), &api.ChatRequest{Model: "gpt-4"})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}

	msgs := collectMessages(t, ch)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want terminal only: %+v", len(msgs), msgs)
	}

	tc := msgs[0].ToolCall
	if tc == nil {
		t.Fatal("terminal has no tool call")
	}
	if tc.ID != "call_9" || tc.Name != "get_weather" {
		t.Errorf("tool call identity = %+v", tc)
	}

	var args map[string]string
	if err := json.Unmarshal(tc.Arguments, &args); err != nil {
		t.Fatalf("arguments not valid JSON: %v", err)
	}
	if args["location"] != "Paris" {
		t.Errorf("arguments = %v", args)
	}
}

func TestListModelsFiltersNonChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[
			{"id":"gpt-4","name":"GPT 4","vendor":"openai","capabilities":{"type":"chat"}},
			{"id":"embed-3","name":"Embeddings","vendor":"openai","capabilities":{"type":"embeddings"}},
			{"id":"legacy","name":"Legacy"}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(&staticCreds{cred: credential.Credential{Token: "t", Endpoint: srv.URL}}, 5*time.Second)
	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error: %v", err)
	}

	if len(models) != 2 {
		t.Fatalf("got %d models, want 2 (embeddings filtered): %+v", len(models), models)
	}
	if models[0].ID != "gpt-4" || models[1].ID != "legacy" {
		t.Errorf("models = %+v", models)
	}
}
