// Package jwt votes on callers presenting RSA-signed JWTs. Signing
// keys come from a JWKS endpoint and are refreshed on an interval;
// issuer, audience, and the claims carrying subject and scopes are
// configurable.
package jwt

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/relais/pkg/auth"
	"github.com/rhuss/relais/pkg/debug"
)

// Config declares how tokens are validated and mapped to identities.
type Config struct {
	// Issuer and Audience are enforced when non-empty.
	Issuer   string
	Audience string

	// JWKSURL is the endpoint serving the signing keys.
	JWKSURL string

	// SubjectClaim names the claim carrying the caller subject.
	// Defaults to "sub".
	SubjectClaim string

	// ScopeClaim names the claim carrying scopes, either as a
	// space-separated string or a string array. Defaults to "scope";
	// when absent the "scp" claim is consulted as a fallback.
	ScopeClaim string

	// Refresh bounds how long fetched signing keys are reused.
	// Defaults to one hour.
	Refresh time.Duration

	// HTTPClient performs the JWKS fetches. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

func (c *Config) defaults() {
	if c.SubjectClaim == "" {
		c.SubjectClaim = "sub"
	}
	if c.ScopeClaim == "" {
		c.ScopeClaim = "scope"
	}
	if c.Refresh <= 0 {
		c.Refresh = time.Hour
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
}

// Voter validates JWT bearer tokens for the bridge.
type Voter struct {
	cfg  Config
	keys *keyset
}

// New builds a Voter. The JWKS endpoint is contacted lazily on the
// first token carrying an unknown key id.
func New(cfg Config) *Voter {
	cfg.defaults()
	return &Voter{
		cfg: cfg,
		keys: &keyset{
			url:     cfg.JWKSURL,
			client:  cfg.HTTPClient,
			refresh: cfg.Refresh,
		},
	}
}

// Authenticate abstains when no bearer credential is present, denies
// on any validation failure, and allows with the token's identity
// otherwise.
func (v *Voter) Authenticate(ctx context.Context, r *http.Request) auth.Result {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return auth.Result{Decision: auth.Abstain}
	}
	raw := strings.TrimPrefix(header, prefix)
	if raw == "" {
		return auth.Result{Decision: auth.Deny, Err: fmt.Errorf("jwt: empty bearer token")}
	}

	token, err := jwtlib.Parse(raw, func(token *jwtlib.Token) (any, error) {
		if _, ok := token.Method.(*jwtlib.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("signing method %v not accepted", token.Header["alg"])
		}
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("token has no kid header")
		}
		return v.keys.lookup(ctx, kid)
	}, v.parserOptions()...)
	if err != nil {
		debug.Log("auth", "token rejected", "error", err)
		return auth.Result{Decision: auth.Deny, Err: fmt.Errorf("jwt: %w", err)}
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return auth.Result{Decision: auth.Deny, Err: fmt.Errorf("jwt: unexpected claims type")}
	}

	subject, _ := claims[v.cfg.SubjectClaim].(string)
	if subject == "" {
		return auth.Result{Decision: auth.Deny, Err: fmt.Errorf("jwt: claim %q missing", v.cfg.SubjectClaim)}
	}

	return auth.Result{
		Decision: auth.Allow,
		Identity: &auth.Identity{
			Subject: subject,
			Scopes:  scopesFromClaims(claims, v.cfg.ScopeClaim),
		},
	}
}

func (v *Voter) parserOptions() []jwtlib.ParserOption {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(v.cfg.Audience))
	}
	return opts
}

// scopesFromClaims reads the configured scope claim, falling back to
// "scp" (used by several identity providers) when the primary claim
// is absent.
func scopesFromClaims(claims jwtlib.MapClaims, claim string) []string {
	val, ok := claims[claim]
	if !ok {
		val, ok = claims["scp"]
		if !ok {
			return nil
		}
	}

	switch s := val.(type) {
	case string:
		fields := strings.Fields(s)
		if len(fields) == 0 {
			return nil
		}
		return fields
	case []any:
		var scopes []string
		for _, item := range s {
			if str, ok := item.(string); ok {
				scopes = append(scopes, str)
			}
		}
		return scopes
	}
	return nil
}

// keyset holds the RSA public keys of a JWKS endpoint, refreshed as a
// whole when stale or when an unknown kid is requested.
type keyset struct {
	url     string
	client  *http.Client
	refresh time.Duration

	mu      sync.Mutex
	keys    map[string]*rsa.PublicKey
	fetched time.Time
}

func (k *keyset) lookup(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if key, ok := k.keys[kid]; ok && time.Since(k.fetched) < k.refresh {
		return key, nil
	}

	if err := k.fetch(ctx); err != nil {
		return nil, err
	}
	key, ok := k.keys[kid]
	if !ok {
		return nil, fmt.Errorf("kid %q not in key set", kid)
	}
	return key, nil
}

// fetch replaces the cached keys with the endpoint's current set.
// Caller holds the mutex.
func (k *keyset) fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return fmt.Errorf("building JWKS request: %w", err)
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching JWKS: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned %d", resp.StatusCode)
	}

	var doc struct {
		Keys []struct {
			Kty string `json:"kty"`
			Kid string `json:"kid"`
			Use string `json:"use"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("decoding JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, jwk := range doc.Keys {
		if jwk.Kty != "RSA" || (jwk.Use != "" && jwk.Use != "sig") {
			continue
		}
		n, err := base64.RawURLEncoding.DecodeString(jwk.N)
		if err != nil {
			continue
		}
		e, err := base64.RawURLEncoding.DecodeString(jwk.E)
		if err != nil {
			continue
		}
		exp := new(big.Int).SetBytes(e)
		if !exp.IsInt64() {
			continue
		}
		keys[jwk.Kid] = &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}
	}

	k.keys = keys
	k.fetched = time.Now()
	debug.Log("auth", "signing keys refreshed", "count", len(keys))
	return nil
}
