// Package agent defines the authorization collaborator interface: an
// external process that owns the interactive device-code sign-in flow
// and the long-lived authorization state. The credential Manager is
// polymorphic over any implementation of Authorizer.
package agent

import "context"

// Status is the collaborator's view of the authorization state.
type Status struct {
	Authenticated bool   `json:"authenticated"`
	User          string `json:"user,omitempty"`
}

// Initiation is the start of a device-code sign-in: the user enters
// UserCode at VerificationURI out of band.
type Initiation struct {
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
}

// Authorizer is the capability set of the authorization collaborator.
type Authorizer interface {
	// CheckStatus reports whether the collaborator holds a usable
	// authorization.
	CheckStatus(ctx context.Context) (Status, error)

	// SignInInitiate starts a device-code flow and returns the user
	// code and verification URL to present to the user.
	SignInInitiate(ctx context.Context) (Initiation, error)

	// SignInConfirm blocks until the out-of-band confirmation for the
	// given user code completes, then reports the resulting status.
	SignInConfirm(ctx context.Context, userCode string) (Status, error)

	// SignOut discards the collaborator's authorization state.
	// Idempotent when already signed out.
	SignOut(ctx context.Context) error
}
