// Package mcpagent implements agent.Authorizer against an external
// authorization agent process spoken to over a local RPC channel. The
// agent runs as a subprocess and exposes its capability set as MCP
// tools (checkStatus, signInInitiate, signInConfirm, signOut) over
// stdio.
package mcpagent

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/relais/pkg/agent"
	"github.com/rhuss/relais/pkg/debug"
)

// Config describes how to start the agent subprocess.
type Config struct {
	// Command is the agent executable.
	Command string

	// Args are passed to the agent executable.
	Args []string
}

// Client talks to the authorization agent over an MCP session.
type Client struct {
	cfg     Config
	client  *mcp.Client
	session *mcp.ClientSession
}

// Ensure Client implements agent.Authorizer at compile time.
var _ agent.Authorizer = (*Client)(nil)

// New creates a Client for the given configuration. Call Connect to
// start the agent and establish the session.
func New(cfg Config) *Client {
	return &Client{cfg: cfg}
}

// Connect starts the agent subprocess and performs the protocol
// handshake over its stdio.
func (c *Client) Connect(ctx context.Context) error {
	if c.cfg.Command == "" {
		return fmt.Errorf("agent command not configured")
	}
	cmd := exec.Command(c.cfg.Command, c.cfg.Args...)
	return c.ConnectWithTransport(ctx, &mcp.CommandTransport{Command: cmd})
}

// ConnectWithTransport establishes the session over the given
// transport. Used directly by tests with an in-memory transport.
func (c *Client) ConnectWithTransport(ctx context.Context, transport mcp.Transport) error {
	c.client = mcp.NewClient(
		&mcp.Implementation{
			Name:    "relais",
			Version: "1.0.0",
		},
		&mcp.ClientOptions{
			Capabilities: &mcp.ClientCapabilities{},
		},
	)

	session, err := c.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connecting to authorization agent: %w", err)
	}
	c.session = session
	return nil
}

// Close terminates the session and, with it, the agent subprocess.
func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

// CheckStatus queries the agent's authorization state.
func (c *Client) CheckStatus(ctx context.Context) (agent.Status, error) {
	var status agent.Status
	if err := c.call(ctx, "checkStatus", nil, &status); err != nil {
		return agent.Status{}, err
	}
	return status, nil
}

// SignInInitiate starts the device-code flow on the agent.
func (c *Client) SignInInitiate(ctx context.Context) (agent.Initiation, error) {
	var init agent.Initiation
	if err := c.call(ctx, "signInInitiate", nil, &init); err != nil {
		return agent.Initiation{}, err
	}
	if init.UserCode == "" || init.VerificationURI == "" {
		return agent.Initiation{}, fmt.Errorf("agent returned an incomplete sign-in initiation")
	}
	return init, nil
}

// SignInConfirm waits for the out-of-band confirmation of userCode.
func (c *Client) SignInConfirm(ctx context.Context, userCode string) (agent.Status, error) {
	var status agent.Status
	args := map[string]any{"userCode": userCode}
	if err := c.call(ctx, "signInConfirm", args, &status); err != nil {
		return agent.Status{}, err
	}
	return status, nil
}

// SignOut discards the agent's authorization state.
func (c *Client) SignOut(ctx context.Context) error {
	return c.call(ctx, "signOut", nil, nil)
}

// call invokes one agent tool and decodes its text content into out.
// A nil out discards the result body.
func (c *Client) call(ctx context.Context, name string, args map[string]any, out any) error {
	if c.session == nil {
		return fmt.Errorf("authorization agent not connected")
	}

	debug.Log("agent", "calling agent tool", "tool", name)
	result, err := c.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return fmt.Errorf("agent call %q: %w", name, err)
	}
	if result.IsError {
		return fmt.Errorf("agent call %q failed: %s", name, resultText(result))
	}
	if out == nil {
		return nil
	}

	text := resultText(result)
	if text == "" {
		return fmt.Errorf("agent call %q returned no content", name)
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("agent call %q: decoding result: %w", name, err)
	}
	return nil
}

// resultText concatenates the text content blocks of a tool result.
func resultText(result *mcp.CallToolResult) string {
	var text string
	for _, content := range result.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			text += tc.Text
		}
	}
	return text
}
