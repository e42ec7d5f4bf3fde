// Package apikey authenticates bearer tokens against a static key set.
// Keys are stored as SHA-256 digests and matched in constant time, so a
// leaked process image does not reveal plaintext keys and lookup timing
// does not reveal which prefix matched.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/dirigent-dev/dirigent/pkg/auth"
)

// Credential pairs a plaintext API key with the identity it grants.
// This is the configuration shape; the plaintext never outlives New.
type Credential struct {
	Key      string
	Identity auth.Identity
}

type hashedKey struct {
	digest   [32]byte
	identity auth.Identity
}

// Authenticator validates bearer tokens against the configured key set.
type Authenticator struct {
	keys []hashedKey
}

// New hashes the given credentials into an authenticator.
func New(creds []Credential) *Authenticator {
	a := &Authenticator{}
	for _, c := range creds {
		a.keys = append(a.keys, hashedKey{
			digest:   sha256.Sum256([]byte(c.Key)),
			identity: c.Identity,
		})
	}
	return a
}

// Authenticate checks the Authorization header. Requests without a Bearer
// credential are skipped so another scheme can claim them; a Bearer token
// that matches no key is denied.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.Result {
	header := r.Header.Get("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return auth.Result{Decision: auth.Skip}
	}

	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" {
		return auth.Result{Decision: auth.Deny, Err: auth.ErrUnauthenticated}
	}

	digest := sha256.Sum256([]byte(token))
	for _, k := range a.keys {
		if subtle.ConstantTimeCompare(digest[:], k.digest[:]) == 1 {
			id := k.identity
			return auth.Result{Decision: auth.Allow, Identity: &id}
		}
	}

	return auth.Result{Decision: auth.Deny, Err: auth.ErrUnauthenticated}
}
