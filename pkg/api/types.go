package api

import "encoding/json"

// ChatRequest is the outward request format accepted by the bridge.
type ChatRequest struct {
	Model    string           `json:"model"`
	Messages []ChatMessage    `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`

	// Stream defaults to true when omitted.
	Stream *bool `json:"stream,omitempty"`
}

// Streaming reports whether the request asked for incremental delivery.
func (r *ChatRequest) Streaming() bool {
	return r.Stream == nil || *r.Stream
}

// ChatMessage is one entry of the ordered conversation history.
//
// Role "tool" messages carry the result of a previously finalized tool
// call and must set ToolCallID.
type ChatMessage struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	Name       string `json:"name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolDefinition describes a tool the model may call. Parameters is a
// JSON Schema object passed through to the upstream verbatim.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Message is one normalized output message of a streamed response.
//
// Messages are delivered in the same relative order as the upstream
// frames that produced them. Exactly one message per stream has
// Done=true; it carries no content delta.
type Message struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
	Created int64  `json:"created,omitempty"`
	Done    bool   `json:"done"`

	// ToolCall is set on the terminal message when the upstream finished
	// with a tool call; its arguments are the fully reassembled JSON.
	ToolCall *ToolCall `json:"tool_call,omitempty"`

	// Usage is set on the terminal message when the upstream reported
	// token counts.
	Usage *Usage `json:"usage,omitempty"`

	// Err is set when the stream failed after output had already been
	// delivered. Earlier messages are never retracted.
	Err *BridgeError `json:"error,omitempty"`
}

// ToolCall is a finalized tool invocation requested by the model.
type ToolCall struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Usage holds token counts reported by the upstream for one request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ModelInfo describes one entry of the upstream model catalog.
type ModelInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Vendor string `json:"vendor,omitempty"`
}
