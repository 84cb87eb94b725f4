package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rhuss/relais/pkg/agent"
	"github.com/rhuss/relais/pkg/api"
	"github.com/rhuss/relais/pkg/debug"
	"github.com/rhuss/relais/pkg/observability"
)

// Prompter presents a device-code challenge to the user during sign-in.
type Prompter func(userCode, verificationURI string)

// errNoAuthorizer is returned by the interactive operations of a
// Manager built without an authorization collaborator. EnsureValid and
// Run stay usable; they only need the exchanger.
var errNoAuthorizer = errors.New("no authorization collaborator configured")

// ManagerConfig holds Manager settings.
type ManagerConfig struct {
	// RenewInterval is the background renewal tick. It must be strictly
	// shorter than the credential lifetime so an in-flight streaming
	// request is never starved of time to complete under its current
	// credential. Default: 25 minutes.
	RenewInterval time.Duration

	// RenewAhead renews a credential this long before its expiry, so
	// renewal happens well before the deadline rather than after.
	// Default: 5 minutes.
	RenewAhead time.Duration

	// Prompter presents sign-in challenges. Default: discard.
	Prompter Prompter
}

func (c *ManagerConfig) applyDefaults() {
	if c.RenewInterval == 0 {
		c.RenewInterval = 25 * time.Minute
	}
	if c.RenewAhead == 0 {
		c.RenewAhead = 5 * time.Minute
	}
	if c.Prompter == nil {
		c.Prompter = func(string, string) {}
	}
}

// Manager owns the credential lifecycle: sign-in, sign-out, and
// renewal. EnsureValid may be invoked concurrently by a request path
// and the background timer; the policy is last-writer-wins with no
// in-flight deduplication. A concurrent second exchange is wasteful but
// not unsafe, since the Store replaces the credential atomically.
type Manager struct {
	store     *Store
	auth      agent.Authorizer
	exchanger Exchanger
	cfg       ManagerConfig
}

// NewManager creates a Manager around the given store, authorization
// collaborator, and exchanger.
func NewManager(store *Store, auth agent.Authorizer, exchanger Exchanger, cfg ManagerConfig) *Manager {
	cfg.applyDefaults()
	return &Manager{
		store:     store,
		auth:      auth,
		exchanger: exchanger,
		cfg:       cfg,
	}
}

// EnsureValid returns the current credential if it is still usable,
// renewing it first otherwise. A failed exchange leaves the store
// untouched: an old credential, even an expired one, is not discarded
// on the strength of a transient renewal failure.
func (m *Manager) EnsureValid(ctx context.Context) (Credential, error) {
	if cred, ok := m.store.Get(); ok && cred.Valid(time.Now().Add(m.cfg.RenewAhead)) {
		return cred, nil
	}
	return m.refresh(ctx)
}

// refresh performs one exchange and replaces the stored credential.
func (m *Manager) refresh(ctx context.Context) (Credential, error) {
	cred, err := m.exchanger.Exchange(ctx)
	if err != nil {
		observability.CredentialRenewalsTotal.WithLabelValues("failure").Inc()
		return Credential{}, err
	}
	observability.CredentialRenewalsTotal.WithLabelValues("success").Inc()
	m.store.Set(cred)
	debug.Log("credential", "credential renewed", "endpoint", cred.Endpoint, "expires_at", cred.ExpiresAt)
	return cred, nil
}

// SignIn drives the interactive device-code flow through the
// collaborator. When the collaborator is already authenticated and
// force is false, it only makes sure a usable credential is stored.
func (m *Manager) SignIn(ctx context.Context, force bool) error {
	if m.auth == nil {
		return errNoAuthorizer
	}
	if !force {
		status, err := m.auth.CheckStatus(ctx)
		if err != nil {
			return fmt.Errorf("checking authorization status: %w", err)
		}
		if status.Authenticated {
			_, err := m.EnsureValid(ctx)
			return err
		}
	}

	init, err := m.auth.SignInInitiate(ctx)
	if err != nil {
		return fmt.Errorf("initiating sign-in: %w", err)
	}
	m.cfg.Prompter(init.UserCode, init.VerificationURI)

	status, err := m.auth.SignInConfirm(ctx, init.UserCode)
	if err != nil {
		return fmt.Errorf("confirming sign-in: %w", err)
	}
	if !status.Authenticated {
		return api.NewAuthenticationError("sign-in was not confirmed")
	}

	slog.Info("signed in", "user", status.User)

	// The collaborator holds a fresh authorization; exchange it for a
	// new credential regardless of what is stored.
	_, err = m.refresh(ctx)
	return err
}

// SignOut invalidates the local credential and notifies the
// collaborator. Idempotent when already signed out.
func (m *Manager) SignOut(ctx context.Context) error {
	if m.auth == nil {
		return errNoAuthorizer
	}
	m.store.Clear()
	if err := m.auth.SignOut(ctx); err != nil {
		return fmt.Errorf("notifying collaborator of sign-out: %w", err)
	}
	return nil
}

// Status queries the collaborator's authorization state.
func (m *Manager) Status(ctx context.Context) (agent.Status, error) {
	if m.auth == nil {
		return agent.Status{}, errNoAuthorizer
	}
	return m.auth.CheckStatus(ctx)
}

// Run drives the background renewal loop until ctx is cancelled.
// Renewal failures are logged and retried on the next tick; they never
// terminate the loop.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.RenewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.EnsureValid(ctx); err != nil {
				slog.Error("credential renewal failed", "error", err)
			}
		}
	}
}
