package credential

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rhuss/relais/pkg/agent"
	"github.com/rhuss/relais/pkg/api"
)

// fakeExchanger counts exchanges and returns a scripted result.
type fakeExchanger struct {
	calls int
	cred  Credential
	err   error
}

func (f *fakeExchanger) Exchange(context.Context) (Credential, error) {
	f.calls++
	if f.err != nil {
		return Credential{}, f.err
	}
	return f.cred, nil
}

// fakeAuthorizer scripts the collaborator's responses.
type fakeAuthorizer struct {
	status        agent.Status
	statusErr     error
	initiations   int
	confirmations int
	signOuts      int
	confirmStatus agent.Status
}

func (f *fakeAuthorizer) CheckStatus(context.Context) (agent.Status, error) {
	return f.status, f.statusErr
}

func (f *fakeAuthorizer) SignInInitiate(context.Context) (agent.Initiation, error) {
	f.initiations++
	return agent.Initiation{UserCode: "ABCD-1234", VerificationURI: "https://verify.example"}, nil
}

func (f *fakeAuthorizer) SignInConfirm(_ context.Context, userCode string) (agent.Status, error) {
	f.confirmations++
	if userCode != "ABCD-1234" {
		return agent.Status{}, errors.New("unexpected user code")
	}
	return f.confirmStatus, nil
}

func (f *fakeAuthorizer) SignOut(context.Context) error {
	f.signOuts++
	return nil
}

func newTestManager(store *Store, auth agent.Authorizer, ex Exchanger) *Manager {
	return NewManager(store, auth, ex, ManagerConfig{
		RenewInterval: time.Minute,
		RenewAhead:    time.Minute,
	})
}

func TestEnsureValidReturnsStoredCredential(t *testing.T) {
	store := NewStore()
	store.Set(Credential{Token: "fresh", ExpiresAt: time.Now().Add(time.Hour)})
	ex := &fakeExchanger{}
	m := newTestManager(store, &fakeAuthorizer{}, ex)

	cred, err := m.EnsureValid(context.Background())
	if err != nil {
		t.Fatalf("EnsureValid() error: %v", err)
	}
	if cred.Token != "fresh" {
		t.Errorf("token = %q", cred.Token)
	}
	if ex.calls != 0 {
		t.Errorf("exchange called %d times for a valid credential", ex.calls)
	}
}

func TestEnsureValidRenewsExpired(t *testing.T) {
	store := NewStore()
	store.Set(Credential{Token: "stale", ExpiresAt: time.Now().Add(-time.Minute)})
	ex := &fakeExchanger{cred: Credential{Token: "renewed", ExpiresAt: time.Now().Add(time.Hour)}}
	m := newTestManager(store, &fakeAuthorizer{}, ex)

	cred, err := m.EnsureValid(context.Background())
	if err != nil {
		t.Fatalf("EnsureValid() error: %v", err)
	}
	if cred.Token != "renewed" {
		t.Errorf("token = %q, want renewed credential", cred.Token)
	}
	if ex.calls != 1 {
		t.Errorf("exchange called %d times, want exactly 1", ex.calls)
	}

	stored, ok := store.Get()
	if !ok || stored.Token != "renewed" {
		t.Errorf("store = %+v, %v, want renewed credential", stored, ok)
	}
}

func TestEnsureValidRenewsAheadOfExpiry(t *testing.T) {
	store := NewStore()
	// Still valid, but inside the renew-ahead window.
	store.Set(Credential{Token: "closing", ExpiresAt: time.Now().Add(10 * time.Second)})
	ex := &fakeExchanger{cred: Credential{Token: "renewed", ExpiresAt: time.Now().Add(time.Hour)}}
	m := newTestManager(store, &fakeAuthorizer{}, ex)

	cred, err := m.EnsureValid(context.Background())
	if err != nil {
		t.Fatalf("EnsureValid() error: %v", err)
	}
	if cred.Token != "renewed" || ex.calls != 1 {
		t.Errorf("cred=%+v calls=%d, want early renewal", cred, ex.calls)
	}
}

func TestEnsureValidFailureKeepsStore(t *testing.T) {
	store := NewStore()
	old := Credential{Token: "old", ExpiresAt: time.Now().Add(-time.Minute)}
	store.Set(old)
	ex := &fakeExchanger{err: api.NewAuthenticationError("artifact rejected")}
	m := newTestManager(store, &fakeAuthorizer{}, ex)

	_, err := m.EnsureValid(context.Background())
	if !api.IsAuthentication(err) {
		t.Fatalf("EnsureValid() error = %v, want authentication error", err)
	}

	// The old credential, expired or not, is not discarded.
	stored, ok := store.Get()
	if !ok || stored.Token != "old" {
		t.Errorf("store = %+v, %v, want old credential untouched", stored, ok)
	}
}

func TestSignInAlreadyAuthenticated(t *testing.T) {
	store := NewStore()
	store.Set(Credential{Token: "valid", ExpiresAt: time.Now().Add(time.Hour)})
	auth := &fakeAuthorizer{status: agent.Status{Authenticated: true, User: "octocat"}}
	ex := &fakeExchanger{}
	m := newTestManager(store, auth, ex)

	if err := m.SignIn(context.Background(), false); err != nil {
		t.Fatalf("SignIn() error: %v", err)
	}
	if auth.initiations != 0 {
		t.Errorf("initiated sign-in despite valid authorization")
	}
	if ex.calls != 0 {
		t.Errorf("exchanged despite valid stored credential")
	}
}

func TestSignInDeviceFlow(t *testing.T) {
	store := NewStore()
	auth := &fakeAuthorizer{
		status:        agent.Status{Authenticated: false},
		confirmStatus: agent.Status{Authenticated: true, User: "octocat"},
	}
	ex := &fakeExchanger{cred: Credential{Token: "new", ExpiresAt: time.Now().Add(time.Hour)}}

	var promptedCode, promptedURI string
	m := NewManager(store, auth, ex, ManagerConfig{
		Prompter: func(code, uri string) {
			promptedCode, promptedURI = code, uri
		},
	})

	if err := m.SignIn(context.Background(), false); err != nil {
		t.Fatalf("SignIn() error: %v", err)
	}

	if promptedCode != "ABCD-1234" || promptedURI != "https://verify.example" {
		t.Errorf("prompt = %q / %q", promptedCode, promptedURI)
	}
	if auth.initiations != 1 || auth.confirmations != 1 {
		t.Errorf("initiations=%d confirmations=%d, want 1/1", auth.initiations, auth.confirmations)
	}
	if cred, ok := store.Get(); !ok || cred.Token != "new" {
		t.Errorf("store = %+v, %v after sign-in", cred, ok)
	}
}

func TestSignInForceRestartsFlow(t *testing.T) {
	store := NewStore()
	store.Set(Credential{Token: "valid", ExpiresAt: time.Now().Add(time.Hour)})
	auth := &fakeAuthorizer{
		status:        agent.Status{Authenticated: true},
		confirmStatus: agent.Status{Authenticated: true},
	}
	ex := &fakeExchanger{cred: Credential{Token: "forced", ExpiresAt: time.Now().Add(time.Hour)}}
	m := newTestManager(store, auth, ex)

	if err := m.SignIn(context.Background(), true); err != nil {
		t.Fatalf("SignIn(force) error: %v", err)
	}
	if auth.initiations != 1 {
		t.Errorf("forced sign-in did not restart the flow")
	}
	if cred, _ := store.Get(); cred.Token != "forced" {
		t.Errorf("store token = %q, want forced exchange result", cred.Token)
	}
}

func TestSignInNotConfirmed(t *testing.T) {
	m := newTestManager(NewStore(), &fakeAuthorizer{
		confirmStatus: agent.Status{Authenticated: false},
	}, &fakeExchanger{})

	err := m.SignIn(context.Background(), true)
	if !api.IsAuthentication(err) {
		t.Errorf("SignIn() error = %v, want authentication error", err)
	}
}

func TestSignOut(t *testing.T) {
	store := NewStore()
	store.Set(Credential{Token: "tok"})
	auth := &fakeAuthorizer{}
	m := newTestManager(store, auth, &fakeExchanger{})

	if err := m.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut() error: %v", err)
	}
	if _, ok := store.Get(); ok {
		t.Error("credential still stored after sign-out")
	}
	if auth.signOuts != 1 {
		t.Errorf("collaborator notified %d times", auth.signOuts)
	}

	// Idempotent.
	if err := m.SignOut(context.Background()); err != nil {
		t.Errorf("second SignOut() error: %v", err)
	}
}

func TestRunRetriesAfterFailure(t *testing.T) {
	store := NewStore()
	ex := &fakeExchanger{err: errors.New("network down")}
	m := NewManager(store, &fakeAuthorizer{}, ex, ManagerConfig{
		RenewInterval: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	m.Run(ctx)

	// The loop kept ticking through failures instead of stopping at the
	// first one.
	if ex.calls < 2 {
		t.Errorf("exchange attempted %d times, want repeated retries", ex.calls)
	}
}

func TestManagerWithoutAuthorizer(t *testing.T) {
	store := NewStore()
	ex := &fakeExchanger{cred: Credential{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}}
	m := newTestManager(store, nil, ex)

	ctx := context.Background()

	// The exchange-only path works without a collaborator.
	if _, err := m.EnsureValid(ctx); err != nil {
		t.Fatalf("EnsureValid() error: %v", err)
	}

	// The interactive operations refuse instead of dereferencing nil.
	if err := m.SignIn(ctx, false); err == nil {
		t.Error("SignIn() without collaborator should fail")
	}
	if err := m.SignOut(ctx); err == nil {
		t.Error("SignOut() without collaborator should fail")
	}
	if _, err := m.Status(ctx); err == nil {
		t.Error("Status() without collaborator should fail")
	}
}
