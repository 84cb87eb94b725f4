package upstream

import (
	"encoding/json"

	"github.com/rhuss/relais/pkg/api"
)

// Chat Completions wire types for the upstream backend. These mirror
// the subset of the protocol the bridge uses.

// chatRequest is the request body for {endpoint}/chat/completions.
type chatRequest struct {
	Model         string             `json:"model"`
	Messages      []chatMessage      `json:"messages"`
	Tools         []chatTool         `json:"tools,omitempty"`
	Stream        bool               `json:"stream"`
	StreamOptions *chatStreamOptions `json:"stream_options,omitempty"`
}

// chatStreamOptions controls streaming behavior.
type chatStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// chatMessage is a message in the Chat Completions format.
type chatMessage struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	Name       string `json:"name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// chatTool is a tool definition.
type chatTool struct {
	Type     string          `json:"type"`
	Function chatFunctionDef `json:"function"`
}

// chatFunctionDef is a function definition for a tool.
type chatFunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// chatCompletionChunk is a single streamed response record.
type chatCompletionChunk struct {
	ID      string            `json:"id"`
	Object  string            `json:"object"`
	Created int64             `json:"created"`
	Model   string            `json:"model"`
	Choices []chatChunkChoice `json:"choices"`
	Usage   *chatUsage        `json:"usage,omitempty"`
}

// chatChunkChoice is one choice within a streamed chunk.
type chatChunkChoice struct {
	Index        int            `json:"index"`
	Delta        chatChunkDelta `json:"delta"`
	FinishReason *string        `json:"finish_reason"`
}

// chatChunkDelta carries the incremental content of one chunk.
type chatChunkDelta struct {
	Role      string              `json:"role,omitempty"`
	Content   *string             `json:"content,omitempty"`
	ToolCalls []chatToolCallDelta `json:"tool_calls,omitempty"`
}

// chatToolCallDelta is an incremental tool-call fragment. The first
// fragment for an index carries the call ID and function name; later
// fragments carry argument substrings only.
type chatToolCallDelta struct {
	Index    int                   `json:"index"`
	ID       string                `json:"id,omitempty"`
	Type     string                `json:"type,omitempty"`
	Function chatFunctionCallDelta `json:"function"`
}

// chatFunctionCallDelta holds the incremental function name and
// argument substring.
type chatFunctionCallDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// chatUsage holds token usage reported by the backend.
type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// chatModelsResponse is the response of {endpoint}/models.
type chatModelsResponse struct {
	Data []chatModel `json:"data"`
}

// chatModel describes one catalog entry.
type chatModel struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Vendor       string `json:"vendor"`
	Capabilities struct {
		Type string `json:"type"`
	} `json:"capabilities"`
}

// translateRequest converts an outward chat request into the upstream
// Chat Completions format with streaming forced on and usage reporting
// requested.
func translateRequest(req *api.ChatRequest) *chatRequest {
	out := &chatRequest{
		Model:  req.Model,
		Stream: true,
		StreamOptions: &chatStreamOptions{
			IncludeUsage: true,
		},
	}

	for _, m := range req.Messages {
		out.Messages = append(out.Messages, chatMessage{
			Role:       m.Role,
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		})
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, chatTool{
			Type: "function",
			Function: chatFunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	return out
}
