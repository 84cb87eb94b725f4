package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rhuss/relais/pkg/api"
)

// TokenSource supplies the long-lived local authorization artifact used
// for the token exchange. Persistence of the artifact is owned by an
// external collaborator; the bridge only reads it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource returns a TokenSource that always yields the given
// artifact.
func StaticTokenSource(token string) TokenSource {
	return staticTokenSource(token)
}

type staticTokenSource string

func (s staticTokenSource) Token(context.Context) (string, error) {
	if s == "" {
		return "", api.NewAuthenticationError("no authorization artifact configured")
	}
	return string(s), nil
}

// Exchanger exchanges the long-lived artifact for a short-lived
// credential.
type Exchanger interface {
	Exchange(ctx context.Context) (Credential, error)
}

// TokenExchanger is the HTTP Exchanger: it calls a fixed token endpoint
// with the artifact and maps the response to a Credential.
type TokenExchanger struct {
	httpClient *http.Client
	url        string
	source     TokenSource
}

// NewTokenExchanger creates a TokenExchanger against the given endpoint.
func NewTokenExchanger(url string, source TokenSource, timeout time.Duration) *TokenExchanger {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &TokenExchanger{
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
		source:     source,
	}
}

// tokenResponse is the exchange endpoint's response body.
type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
	Endpoints struct {
		API string `json:"api"`
	} `json:"endpoints"`
}

// Exchange performs the token exchange. A 401 or 403 means the
// artifact was rejected and yields an authentication error; the caller
// must leave any previously stored credential untouched.
func (e *TokenExchanger) Exchange(ctx context.Context) (Credential, error) {
	artifact, err := e.source.Token(ctx)
	if err != nil {
		return Credential{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.url, nil)
	if err != nil {
		return Credential{}, api.NewServerError(fmt.Sprintf("failed to create exchange request: %s", err.Error()))
	}
	req.Header.Set("Authorization", "token "+artifact)
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return Credential{}, api.NewTransportError(0, "token exchange: "+err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return Credential{}, api.NewAuthenticationError(
			fmt.Sprintf("token exchange rejected (status %d)", resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Credential{}, api.NewTransportError(resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return Credential{}, api.NewServerError("failed to parse token response: " + err.Error())
	}
	if tr.Token == "" {
		return Credential{}, api.NewAuthenticationError("token endpoint returned an empty token")
	}

	cred := Credential{
		Token:    tr.Token,
		Endpoint: strings.TrimRight(tr.Endpoints.API, "/"),
	}
	if tr.ExpiresAt != 0 {
		cred.ExpiresAt = time.Unix(tr.ExpiresAt, 0)
	}
	return cred, nil
}
