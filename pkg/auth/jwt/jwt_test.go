package jwt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/relais/pkg/auth"
)

const testKid = "relais-test-key"

type jwksFixture struct {
	key    *rsa.PrivateKey
	server *httptest.Server
	hits   int
}

func newJWKSFixture(t *testing.T) *jwksFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	f := &jwksFixture{key: key}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		f.hits++
		doc := map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": testKid,
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		}
		json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *jwksFixture) mint(t *testing.T, claims jwtlib.MapClaims) string {
	t.Helper()
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, claims)
	token.Header["kid"] = testKid
	signed, err := token.SignedString(f.key)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func (f *jwksFixture) voter(cfg Config) *Voter {
	cfg.JWKSURL = f.server.URL
	return New(cfg)
}

func requestWithToken(token string) *http.Request {
	r := httptest.NewRequest("POST", "/api/chat", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func TestAllowsValidToken(t *testing.T) {
	f := newJWKSFixture(t)
	v := f.voter(Config{Issuer: "https://idp.example.com", Audience: "relais"})

	token := f.mint(t, jwtlib.MapClaims{
		"iss":   "https://idp.example.com",
		"aud":   "relais",
		"sub":   "alice",
		"scope": "chat models",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	res := v.Authenticate(context.Background(), requestWithToken(token))
	if res.Decision != auth.Allow {
		t.Fatalf("decision = %v (err %v), want Allow", res.Decision, res.Err)
	}
	if res.Identity.Subject != "alice" {
		t.Fatalf("subject = %q, want alice", res.Identity.Subject)
	}
	if len(res.Identity.Scopes) != 2 || res.Identity.Scopes[1] != "models" {
		t.Fatalf("scopes = %v, want [chat models]", res.Identity.Scopes)
	}
}

func TestDeniesBadTokens(t *testing.T) {
	f := newJWKSFixture(t)

	now := time.Now()
	cases := []struct {
		name   string
		cfg    Config
		claims jwtlib.MapClaims
	}{
		{
			"expired",
			Config{},
			jwtlib.MapClaims{"sub": "alice", "exp": now.Add(-time.Hour).Unix()},
		},
		{
			"wrong issuer",
			Config{Issuer: "https://idp.example.com"},
			jwtlib.MapClaims{"iss": "https://rogue.example.com", "sub": "alice", "exp": now.Add(time.Hour).Unix()},
		},
		{
			"wrong audience",
			Config{Audience: "relais"},
			jwtlib.MapClaims{"aud": "other-service", "sub": "alice", "exp": now.Add(time.Hour).Unix()},
		},
		{
			"missing subject",
			Config{},
			jwtlib.MapClaims{"exp": now.Add(time.Hour).Unix()},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := f.voter(tc.cfg)
			res := v.Authenticate(context.Background(), requestWithToken(f.mint(t, tc.claims)))
			if res.Decision != auth.Deny {
				t.Fatalf("decision = %v, want Deny", res.Decision)
			}
			if res.Err == nil {
				t.Fatal("expected an error alongside Deny")
			}
		})
	}
}

func TestDeniesForgedSignature(t *testing.T) {
	f := newJWKSFixture(t)
	v := f.voter(Config{})

	rogue, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating rogue key: %v", err)
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, jwtlib.MapClaims{
		"sub": "mallory",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	token.Header["kid"] = testKid
	signed, err := token.SignedString(rogue)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}

	if res := v.Authenticate(context.Background(), requestWithToken(signed)); res.Decision != auth.Deny {
		t.Fatalf("decision = %v, want Deny", res.Decision)
	}
}

func TestAbstainsWithoutBearer(t *testing.T) {
	f := newJWKSFixture(t)
	v := f.voter(Config{})

	res := v.Authenticate(context.Background(), requestWithToken(""))
	if res.Decision != auth.Abstain {
		t.Fatalf("decision = %v, want Abstain", res.Decision)
	}
}

func TestScpClaimFallback(t *testing.T) {
	f := newJWKSFixture(t)
	v := f.voter(Config{})

	token := f.mint(t, jwtlib.MapClaims{
		"sub": "alice",
		"scp": []any{"chat", "usage"},
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	res := v.Authenticate(context.Background(), requestWithToken(token))
	if res.Decision != auth.Allow {
		t.Fatalf("decision = %v (err %v), want Allow", res.Decision, res.Err)
	}
	if len(res.Identity.Scopes) != 2 || res.Identity.Scopes[0] != "chat" {
		t.Fatalf("scopes = %v, want [chat usage]", res.Identity.Scopes)
	}
}

func TestSigningKeysCachedAcrossTokens(t *testing.T) {
	f := newJWKSFixture(t)
	v := f.voter(Config{})

	for i := 0; i < 3; i++ {
		token := f.mint(t, jwtlib.MapClaims{
			"sub": "alice",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		if res := v.Authenticate(context.Background(), requestWithToken(token)); res.Decision != auth.Allow {
			t.Fatalf("request %d: decision = %v (err %v)", i, res.Decision, res.Err)
		}
	}
	if f.hits != 1 {
		t.Fatalf("JWKS endpoint hit %d times, want 1", f.hits)
	}
}
