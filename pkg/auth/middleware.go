package auth

import (
	"log/slog"
	"net/http"

	"github.com/dirigent-dev/dirigent/pkg/observability"
	"github.com/dirigent-dev/dirigent/pkg/storage"
)

// Middleware wraps a handler with chain authentication and optional rate
// limiting. Paths on the bypass list (health and metrics endpoints) are
// served without credentials. On success the identity lands in the request
// context, and the tenant id (if any) scopes storage access.
func Middleware(chain *Chain, limiter RateLimiter, bypass []string) func(http.Handler) http.Handler {
	open := make(map[string]bool, len(bypass))
	for _, p := range bypass {
		open[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if open[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			res := chain.Authenticate(r.Context(), r)
			if res.Decision != Allow || res.Identity == nil {
				slog.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", res.Err,
				)
				denyJSON(w, http.StatusUnauthorized, "invalid_request", "authentication required")
				return
			}

			id := res.Identity
			if id.Subject == "" {
				// Authenticator contract violation, not a caller error.
				slog.Error("authenticator returned identity with empty subject")
				denyJSON(w, http.StatusInternalServerError, "server_error", "internal authentication error")
				return
			}

			slog.Debug("authentication succeeded",
				"subject", id.Subject,
				"path", r.URL.Path,
			)

			if limiter != nil {
				if err := limiter.Allow(r.Context(), id); err != nil {
					slog.Warn("rate limit exceeded",
						"subject", id.Subject,
						"tier", id.ServiceTier,
					)
					observability.RateLimitRejectedTotal.WithLabelValues(id.ServiceTier).Inc()
					denyJSON(w, http.StatusTooManyRequests, "too_many_requests", "rate limit exceeded")
					return
				}
			}

			ctx := WithIdentity(r.Context(), id)
			if tenant := id.TenantID(); tenant != "" {
				ctx = storage.SetTenant(ctx, tenant)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func denyJSON(w http.ResponseWriter, status int, errType, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":{"type":"` + errType + `","message":"` + msg + `"}}`))
}

// DefaultBypassEndpoints lists paths served without authentication.
var DefaultBypassEndpoints = []string{"/healthz", "/readyz", "/metrics"}
