package auth

import (
	"context"
	"sync"
	"time"
)

// RateLimiter decides whether an authenticated caller may proceed.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) error
}

// TierConfig sets the request budget for one service tier.
type TierConfig struct {
	RequestsPerMinute int
}

// MemoryLimiter counts requests per subject in fixed one-minute windows,
// entirely in process. Suitable for single-instance deployments; a
// multi-replica gateway needs a shared store instead.
type MemoryLimiter struct {
	tiers      map[string]TierConfig
	defaultRPM int

	mu      sync.Mutex
	windows map[string]*requestWindow
}

type requestWindow struct {
	count   int
	started time.Time
}

// NewMemoryLimiter creates a limiter with per-tier budgets. Subjects in
// tiers without a configured budget get defaultRPM; a budget of zero or
// less means unlimited.
func NewMemoryLimiter(tiers map[string]TierConfig, defaultRPM int) *MemoryLimiter {
	return &MemoryLimiter{
		tiers:      tiers,
		defaultRPM: defaultRPM,
		windows:    make(map[string]*requestWindow),
	}
}

// Allow counts the request against the caller's window and returns
// ErrTooManyRequests once the tier budget is spent.
func (l *MemoryLimiter) Allow(_ context.Context, identity *Identity) error {
	tier := identity.ServiceTier
	if tier == "" {
		tier = "default"
	}

	rpm := l.defaultRPM
	if tc, ok := l.tiers[tier]; ok {
		rpm = tc.RequestsPerMinute
	}
	if rpm <= 0 {
		return nil
	}

	key := identity.Subject + ":" + tier

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.started) >= time.Minute {
		l.windows[key] = &requestWindow{count: 1, started: now}
		return nil
	}

	w.count++
	if w.count > rpm {
		return ErrTooManyRequests
	}
	return nil
}
