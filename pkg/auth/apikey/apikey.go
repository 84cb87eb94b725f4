// Package apikey votes based on static API keys issued to bridge
// callers. Keys are hashed at construction; only digests are held in
// memory and lookup uses constant-time comparison.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/rhuss/relais/pkg/auth"
)

// Entry declares one accepted key and the identity it maps to.
type Entry struct {
	Key     string
	Subject string
	Scopes  []string
}

type hashedEntry struct {
	digest  [sha256.Size]byte
	subject string
	scopes  []string
}

// Voter validates bearer keys against the configured entries.
type Voter struct {
	entries []hashedEntry
}

// New builds a Voter from the configured entries. Plaintext keys are
// discarded after hashing.
func New(entries []Entry) *Voter {
	v := &Voter{entries: make([]hashedEntry, 0, len(entries))}
	for _, e := range entries {
		v.entries = append(v.entries, hashedEntry{
			digest:  sha256.Sum256([]byte(e.Key)),
			subject: e.Subject,
			scopes:  e.Scopes,
		})
	}
	return v
}

var errUnknownKey = errors.New("apikey: key not recognized")

// Authenticate abstains when the request carries no bearer
// credential, denies when it carries a bearer key that does not match
// any entry, and allows with the entry's identity on a match.
func (v *Voter) Authenticate(_ context.Context, r *http.Request) auth.Result {
	key, ok := bearerToken(r)
	if !ok {
		return auth.Result{Decision: auth.Abstain}
	}
	if key == "" {
		return auth.Result{Decision: auth.Deny, Err: errUnknownKey}
	}

	digest := sha256.Sum256([]byte(key))
	for i := range v.entries {
		if subtle.ConstantTimeCompare(digest[:], v.entries[i].digest[:]) == 1 {
			return auth.Result{
				Decision: auth.Allow,
				Identity: &auth.Identity{
					Subject: v.entries[i].subject,
					Scopes:  append([]string(nil), v.entries[i].scopes...),
				},
			}
		}
	}
	return auth.Result{Decision: auth.Deny, Err: errUnknownKey}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	return strings.TrimPrefix(header, prefix), true
}
