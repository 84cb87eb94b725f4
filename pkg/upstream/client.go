package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rhuss/relais/pkg/api"
	"github.com/rhuss/relais/pkg/credential"
	"github.com/rhuss/relais/pkg/debug"
	"github.com/rhuss/relais/pkg/observability"
)

// CredentialSource supplies a valid credential for each outbound
// request, renewing it when necessary.
type CredentialSource interface {
	EnsureValid(ctx context.Context) (credential.Credential, error)
}

// Client drives streaming chat requests against the upstream backend.
// The backend host is taken from the credential, not configured
// statically; a credential rotation can move the client to a new
// endpoint without restart.
type Client struct {
	httpClient *http.Client
	creds      CredentialSource
}

// NewClient creates a Client. The timeout bounds the non-streaming
// catalog requests; streaming requests rely on context cancellation
// instead, since a stream can legitimately outlast any fixed timeout.
func NewClient(creds CredentialSource, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		creds: creds,
	}
}

// Stream issues one streaming chat request and returns a channel of
// normalized messages. The channel preserves frame arrival order and
// is closed after the terminal message.
//
// The credential is validated first; without one, no network call is
// attempted. A non-2xx status fails the call with a transport error
// carrying status and raw body. Failures after the stream opened ride
// the Err field of the terminal message; output already delivered is
// never retracted.
func (c *Client) Stream(ctx context.Context, req *api.ChatRequest) (<-chan api.Message, error) {
	cred, err := c.creds.EnsureValid(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(translateRequest(req))
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to marshal request: %s", err.Error()))
	}

	url := strings.TrimRight(cred.Endpoint, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+cred.Token)

	// No client timeout for streaming, the context governs the lifetime.
	streamClient := &http.Client{
		Transport: c.httpClient.Transport,
	}

	start := time.Now()
	httpResp, err := streamClient.Do(httpReq)
	if err != nil {
		observability.UpstreamRequestsTotal.WithLabelValues("error").Inc()
		return nil, mapNetworkError(err)
	}
	observability.UpstreamLatency.Observe(time.Since(start).Seconds())

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		defer httpResp.Body.Close()
		observability.UpstreamRequestsTotal.WithLabelValues(fmt.Sprintf("%d", httpResp.StatusCode)).Inc()
		return nil, mapHTTPError(httpResp)
	}
	observability.UpstreamRequestsTotal.WithLabelValues("200").Inc()

	ch := make(chan api.Message, 16)
	go func() {
		defer close(ch)
		defer httpResp.Body.Close()
		c.pump(ctx, httpResp.Body, ch)
	}()

	return ch, nil
}

// pump reads raw chunks from the response body, feeds the reassembler,
// routes completed frames through the normalizer, and delivers every
// produced message in order. Reassembly and normalization run to
// completion between reads, which is what guarantees ordering without
// locks.
func (c *Client) pump(ctx context.Context, body io.Reader, ch chan<- api.Message) {
	var re Reassembler
	norm := NewNormalizer()

	send := func(msg *api.Message) bool {
		if msg == nil {
			return true
		}
		if msg.Usage != nil {
			observability.TokensTotal.WithLabelValues("input").Add(float64(msg.Usage.PromptTokens))
			observability.TokensTotal.WithLabelValues("output").Add(float64(msg.Usage.CompletionTokens))
		}
		select {
		case ch <- *msg:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var readErr error
	buf := make([]byte, 4096)

	for {
		if ctx.Err() != nil {
			return
		}

		n, err := body.Read(buf)
		if n > 0 {
			debug.Trace("upstream", "read chunk", "bytes", n)
			for _, frame := range re.Feed(buf[:n]) {
				if debug.TraceIsEnabled("upstream") {
					debug.Raw("upstream", string(frame))
				}
				msg, nerr := norm.Normalize(frame)
				if nerr != nil {
					// Tool-argument decode failure: the stream keeps
					// going, the terminal message carries the error.
					continue
				}
				if !send(msg) {
					return
				}
			}
		}
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				readErr = mapNetworkError(fmt.Errorf("reading stream: %w", err))
			}
			break
		}
	}

	// Stream end: flush any trailing partial frame, then make sure the
	// terminal message goes out exactly once and last.
	if frame, ok := re.Flush(); ok {
		msg, _ := norm.Normalize(frame)
		if !send(msg) {
			return
		}
	}
	if term := norm.Finish(); term != nil {
		if readErr != nil && term.Err == nil {
			term.Err = api.AsBridgeError(readErr)
		}
		send(term)
	}
}

// ListModels queries the upstream model catalog and keeps the entries
// usable for chat.
func (c *Client) ListModels(ctx context.Context) ([]api.ModelInfo, error) {
	cred, err := c.creds.EnsureValid(ctx)
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(cred.Endpoint, "/") + "/models"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}
	httpReq.Header.Set("Authorization", "Bearer "+cred.Token)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, mapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, mapHTTPError(httpResp)
	}

	var catalog chatModelsResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&catalog); err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to parse models response: %s", err.Error()))
	}

	var models []api.ModelInfo
	for _, m := range catalog.Data {
		if m.Capabilities.Type != "" && m.Capabilities.Type != "chat" {
			continue
		}
		models = append(models, api.ModelInfo{
			ID:     m.ID,
			Name:   m.Name,
			Vendor: m.Vendor,
		})
	}
	return models, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
