// Package auth authenticates callers of the bridge's inbound HTTP
// surface. It is unrelated to the managed upstream credential; see
// pkg/credential for that side.
//
// Authenticators vote on each request: Allow carries an identity, Deny
// rejects, and Abstain passes the request to the next voter. The chain
// stops at the first non-abstaining vote; when every voter abstains,
// the chain's fallback decides. Denials and rate-limit rejections are
// reported through the bridge's api.BridgeError taxonomy, so callers
// see the same error envelope on every endpoint.
package auth

import (
	"context"
	"net/http"
)

// Decision is one authenticator's vote on a request.
type Decision int

const (
	// Allow accepts the request; the vote carries the caller identity.
	Allow Decision = iota

	// Deny rejects the request. Credentials were presented and are wrong;
	// no later voter gets to overrule that.
	Deny

	// Abstain defers to the next voter. The authenticator saw no
	// credentials of its kind.
	Abstain
)

// Result is the outcome of a vote. Identity is set only on Allow and
// Err only on Deny.
type Result struct {
	Decision Decision
	Identity *Identity
	Err      error
}

// Identity is the authenticated caller as the rest of the bridge sees
// it: the subject keys usage records and rate-limit buckets.
type Identity struct {
	Subject string
	Scopes  []string
}

// AnonymousSubject is the subject used when the chain allows a request
// nobody authenticated.
const AnonymousSubject = "anonymous"

// Authenticator votes on one request.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) Result
}

// Chain runs voters in order and applies the fallback when all abstain.
type Chain struct {
	voters   []Authenticator
	fallback Decision
}

// NewChain builds a Chain. An open fallback (Allow) with no voters is
// the development configuration; production chains use Deny so that a
// request nobody vouched for is rejected.
func NewChain(fallback Decision, voters ...Authenticator) *Chain {
	return &Chain{voters: voters, fallback: fallback}
}

// Authenticate returns the first non-abstaining vote, or the fallback.
// A fallback Allow yields the anonymous identity.
func (c *Chain) Authenticate(ctx context.Context, r *http.Request) Result {
	for _, v := range c.voters {
		if res := v.Authenticate(ctx, r); res.Decision != Abstain {
			return res
		}
	}
	if c.fallback == Allow {
		return Result{Decision: Allow, Identity: &Identity{Subject: AnonymousSubject}}
	}
	return Result{Decision: Deny}
}

// identityKey is the context key type for the caller identity.
type identityKey struct{}

// WithIdentity returns a context carrying the authenticated identity.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the authenticated identity, or nil when
// the request was not authenticated (bypass endpoints, tests).
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}
