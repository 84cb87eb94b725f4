// Command mock-agent runs a fake authorization agent over MCP stdio,
// for local development of the device-code sign-in flow. It exposes
// the checkStatus, signInInitiate, signInConfirm and signOut tools and
// confirms any sign-in immediately.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type state struct {
	mu            sync.Mutex
	authenticated bool
	user          string
}

func main() {
	st := &state{}

	server := mcp.NewServer(
		&mcp.Implementation{Name: "relais-mock-agent", Version: "v1.0.0"},
		nil,
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "checkStatus",
		Description: "Reports the current authorization state",
	}, func(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, struct{}, error) {
		st.mu.Lock()
		defer st.mu.Unlock()
		return jsonResult(map[string]any{
			"authenticated": st.authenticated,
			"user":          st.user,
		}), struct{}{}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "signInInitiate",
		Description: "Starts a device-code sign-in flow",
	}, func(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, struct{}, error) {
		return jsonResult(map[string]any{
			"user_code":        "MOCK-1234",
			"verification_uri": "https://example.com/device",
		}), struct{}{}, nil
	})

	type confirmInput struct {
		UserCode string `json:"userCode" jsonschema_description:"The user code being confirmed"`
	}
	mcp.AddTool(server, &mcp.Tool{
		Name:        "signInConfirm",
		Description: "Waits for the device-code confirmation",
	}, func(_ context.Context, _ *mcp.CallToolRequest, input confirmInput) (*mcp.CallToolResult, struct{}, error) {
		if input.UserCode != "MOCK-1234" {
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("unknown user code %q", input.UserCode)}},
			}, struct{}{}, nil
		}
		st.mu.Lock()
		st.authenticated = true
		st.user = "mock-user"
		st.mu.Unlock()
		return jsonResult(map[string]any{
			"authenticated": true,
			"user":          "mock-user",
		}), struct{}{}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "signOut",
		Description: "Discards the authorization state",
	}, func(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, struct{}, error) {
		st.mu.Lock()
		st.authenticated = false
		st.user = ""
		st.mu.Unlock()
		return jsonResult(map[string]any{"signed_out": true}), struct{}{}, nil
	})

	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		log.Fatalf("mock agent failed: %v", err)
	}
}

func jsonResult(v any) *mcp.CallToolResult {
	data, _ := json.Marshal(v)
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
