package upstream

import (
	"encoding/json"
	"log/slog"
	"sort"
	"strings"

	"github.com/rhuss/relais/pkg/api"
	"github.com/rhuss/relais/pkg/observability"
)

const (
	// dataPrefix marks the payload line of a frame.
	dataPrefix = "data:"

	// doneSentinel terminates the stream.
	doneSentinel = "[DONE]"
)

// pendingToolCall accumulates a tool call whose arguments are streamed
// in pieces. It exists only while fragments are arriving; the argument
// string is parsed exactly once, at the frame that signals completion.
type pendingToolCall struct {
	id   string
	name string
	args strings.Builder
}

// Normalizer consumes logical frames and produces normalized messages.
// It owns the per-stream accumulator state: pending tool calls keyed by
// index, usage counters, and the model/timestamp captured from the
// first decoded chunk.
//
// A Normalizer is single-use; create one per stream.
type Normalizer struct {
	pending   map[int]*pendingToolCall
	finalized *api.ToolCall
	usage     *api.Usage
	argErr    *api.BridgeError

	model   string
	created int64
	role    string

	done bool
}

// NewNormalizer creates a Normalizer with empty accumulator state.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		pending: make(map[int]*pendingToolCall),
		role:    "assistant",
	}
}

// Normalize processes one logical frame and returns zero or one
// normalized message.
//
// Malformed payloads are logged and dropped; a single bad frame must
// not abort an otherwise healthy stream. The only error returned is a
// tool-argument parse failure at finalization, which is a per-request
// error: the caller keeps consuming the stream and the terminal message
// carries the error.
func (n *Normalizer) Normalize(frame string) (*api.Message, error) {
	payload, ok := framePayload(frame)
	if !ok {
		return nil, nil
	}

	// Nothing may follow the terminal; frames after [DONE] are dropped.
	if n.done {
		return nil, nil
	}

	if payload == doneSentinel {
		return n.terminal(), nil
	}

	var chunk chatCompletionChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		observability.FramesTotal.WithLabelValues("malformed").Inc()
		slog.Warn("skipping malformed frame",
			"error", err.Error(),
			"data", truncate(payload, 200),
		)
		return nil, nil
	}
	observability.FramesTotal.WithLabelValues("ok").Inc()

	if chunk.Model != "" {
		n.model = chunk.Model
	}
	if chunk.Created != 0 {
		n.created = chunk.Created
	}

	// Usage is merged into the accumulator for the terminal message,
	// not emitted immediately.
	if chunk.Usage != nil {
		n.usage = &api.Usage{
			PromptTokens:     chunk.Usage.PromptTokens,
			CompletionTokens: chunk.Usage.CompletionTokens,
			TotalTokens:      chunk.Usage.TotalTokens,
		}
	}

	if len(chunk.Choices) == 0 {
		return nil, nil
	}
	choice := chunk.Choices[0]

	if choice.Delta.Role != "" {
		n.role = choice.Delta.Role
	}

	for _, tc := range choice.Delta.ToolCalls {
		buf, exists := n.pending[tc.Index]
		if !exists {
			// First fragment for this index establishes identity.
			buf = &pendingToolCall{
				id:   tc.ID,
				name: tc.Function.Name,
			}
			n.pending[tc.Index] = buf
		} else if buf.name == "" && tc.Function.Name != "" {
			buf.name = tc.Function.Name
		}
		// Argument substrings are always concatenated, never replaced;
		// only the final concatenation is valid JSON.
		buf.args.WriteString(tc.Function.Arguments)
	}

	if choice.FinishReason != nil && *choice.FinishReason == "tool_calls" {
		if err := n.finalizeToolCalls(); err != nil {
			return nil, err
		}
	}

	if choice.Delta.Content != nil && *choice.Delta.Content != "" {
		return &api.Message{
			Role:    n.role,
			Content: *choice.Delta.Content,
			Model:   n.model,
			Created: n.created,
		}, nil
	}

	return nil, nil
}

// Finish returns the terminal message if the stream ended without a
// [DONE] sentinel, and nil if the terminal was already emitted. The
// caller invokes it after the last frame has been routed.
func (n *Normalizer) Finish() *api.Message {
	if n.done {
		return nil
	}
	return n.terminal()
}

// terminal builds the single done=true message from the accumulator
// state and resets it. It carries no content delta.
func (n *Normalizer) terminal() *api.Message {
	if n.done {
		return nil
	}
	n.done = true

	msg := &api.Message{
		Role:     n.role,
		Model:    n.model,
		Created:  n.created,
		Done:     true,
		ToolCall: n.finalized,
		Usage:    n.usage,
		Err:      n.argErr,
	}

	n.pending = make(map[int]*pendingToolCall)
	n.finalized = nil
	n.usage = nil
	n.argErr = nil

	return msg
}

// finalizeToolCalls parses the accumulated argument string of each
// pending tool call as JSON, exactly once. The terminal message carries
// a single finalized call; when the upstream interleaved several, the
// lowest index wins and the rest are logged.
func (n *Normalizer) finalizeToolCalls() error {
	if len(n.pending) == 0 || n.finalized != nil {
		return nil
	}

	indexes := make([]int, 0, len(n.pending))
	for idx := range n.pending {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	buf := n.pending[indexes[0]]
	if len(indexes) > 1 {
		slog.Warn("multiple tool calls in one stream, keeping the first",
			"count", len(indexes),
		)
	}
	n.pending = make(map[int]*pendingToolCall)

	raw := buf.args.String()
	if raw == "" {
		raw = "{}"
	}

	var parsed json.RawMessage
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		n.argErr = api.NewToolArgumentError(buf.name, err)
		return n.argErr
	}

	n.finalized = &api.ToolCall{
		ID:        buf.id,
		Name:      buf.name,
		Arguments: parsed,
	}
	return nil
}

// framePayload extracts the payload of a frame: the data lines joined
// by newlines. A frame without any data line yields no payload.
func framePayload(frame string) (string, bool) {
	var parts []string
	for _, line := range strings.Split(frame, "\n") {
		line = strings.TrimRight(line, "\r")
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		val := strings.TrimPrefix(line, dataPrefix)
		val = strings.TrimPrefix(val, " ")
		parts = append(parts, val)
	}
	if parts == nil {
		return "", false
	}
	return strings.Join(parts, "\n"), true
}

// truncate limits a string to maxLen characters for log output.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
