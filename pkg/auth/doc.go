// Package auth authenticates gateway callers.
//
// Authenticators are chained: each one inspects the request's credentials
// and either allows it, denies it, or skips to the next authenticator
// because the credential scheme is not its own. When the whole chain
// skips, a configurable fallback decides. This keeps API key and JWT
// authentication composable behind one middleware.
//
// The middleware also places the caller's tenant id into the request
// context so storage can scope reads and writes per tenant.
package auth
