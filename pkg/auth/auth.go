package auth

import (
	"context"
	"errors"
	"net/http"
)

// Decision is the outcome of one authenticator's look at a request.
type Decision int

const (
	// Allow accepts the request. The chain stops and the identity is used.
	Allow Decision = iota

	// Deny rejects the request. Credentials were present but invalid.
	Deny

	// Skip passes the request to the next authenticator in the chain.
	// An authenticator skips when the credential scheme is not its own.
	Skip
)

// Result carries an authenticator's decision and, on Allow, the caller.
type Result struct {
	Decision Decision
	Identity *Identity // set when Decision == Allow
	Err      error     // set when Decision == Deny
}

// Identity is an authenticated caller.
type Identity struct {
	// Subject uniquely identifies the caller. Never empty on Allow.
	Subject string

	// ServiceTier selects the rate limit bucket.
	ServiceTier string

	// Scopes lists granted authorization scopes.
	Scopes []string

	// Metadata carries authenticator-specific data. The "tenant_id" key
	// scopes storage reads and writes.
	Metadata map[string]string
}

// TenantID returns the tenant identifier from metadata, or "".
func (id *Identity) TenantID() string {
	if id == nil || id.Metadata == nil {
		return ""
	}
	return id.Metadata["tenant_id"]
}

// Authenticator inspects a request's credentials and votes on it.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) Result
}

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("access denied")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// Chain runs authenticators in order. The first Allow or Deny wins; when
// every authenticator skips, Fallback decides.
type Chain struct {
	Authenticators []Authenticator

	// Fallback applies when the whole chain skips. Allow gives an
	// anonymous identity (development mode), Deny rejects the request.
	Fallback Decision
}

// Authenticate evaluates the chain against one request.
func (c *Chain) Authenticate(ctx context.Context, r *http.Request) Result {
	for _, a := range c.Authenticators {
		res := a.Authenticate(ctx, r)
		if res.Decision != Skip {
			return res
		}
	}

	if c.Fallback == Allow {
		return Result{
			Decision: Allow,
			Identity: &Identity{Subject: "anonymous", ServiceTier: "default"},
		}
	}
	return Result{Decision: Deny, Err: ErrUnauthenticated}
}
