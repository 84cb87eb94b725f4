package credential

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rhuss/relais/pkg/api"
)

func TestExchangeSuccess(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token":"short-lived","expires_at":1893456000,"endpoints":{"api":"https://chat.example/v1/"}}`))
	}))
	defer srv.Close()

	ex := NewTokenExchanger(srv.URL, StaticTokenSource("long-lived"), 5*time.Second)
	cred, err := ex.Exchange(context.Background())
	if err != nil {
		t.Fatalf("Exchange() error: %v", err)
	}

	if gotAuth != "token long-lived" {
		t.Errorf("Authorization header = %q", gotAuth)
	}
	if cred.Token != "short-lived" {
		t.Errorf("token = %q", cred.Token)
	}
	if cred.Endpoint != "https://chat.example/v1" {
		t.Errorf("endpoint = %q (trailing slash must be stripped)", cred.Endpoint)
	}
	if !cred.ExpiresAt.Equal(time.Unix(1893456000, 0)) {
		t.Errorf("expiry = %v", cred.ExpiresAt)
	}
}

func TestExchangeUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad artifact", http.StatusUnauthorized)
	}))
	defer srv.Close()

	ex := NewTokenExchanger(srv.URL, StaticTokenSource("rejected"), 5*time.Second)
	_, err := ex.Exchange(context.Background())
	if !api.IsAuthentication(err) {
		t.Errorf("Exchange() error = %v, want authentication error", err)
	}
}

func TestExchangeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broken", http.StatusBadGateway)
	}))
	defer srv.Close()

	ex := NewTokenExchanger(srv.URL, StaticTokenSource("tok"), 5*time.Second)
	_, err := ex.Exchange(context.Background())

	be := api.AsBridgeError(err)
	if be.Type != api.ErrorTypeTransport || be.Status != http.StatusBadGateway {
		t.Errorf("Exchange() error = %+v, want transport error with status 502", be)
	}
}

func TestExchangeNoArtifact(t *testing.T) {
	ex := NewTokenExchanger("http://unused.invalid", StaticTokenSource(""), 5*time.Second)
	_, err := ex.Exchange(context.Background())
	if !api.IsAuthentication(err) {
		t.Errorf("Exchange() error = %v, want authentication error", err)
	}
}

func TestExchangeEmptyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token":""}`))
	}))
	defer srv.Close()

	ex := NewTokenExchanger(srv.URL, StaticTokenSource("tok"), 5*time.Second)
	_, err := ex.Exchange(context.Background())
	if !api.IsAuthentication(err) {
		t.Errorf("Exchange() error = %v, want authentication error", err)
	}
}
