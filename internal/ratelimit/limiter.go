// Package ratelimit bounds the number of attempts per identifier within a
// reset window. Counters are abuse throttles, not billing-grade accounting;
// losing them on restart is acceptable.
package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Store counts attempts per key. The first increment of a fresh key opens a
// window; further increments grow the counter until the window deadline
// passes, after which the next increment resets it. Increments on the same
// key must be linearizable.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Limiter enforces a max-attempts-per-window policy over a Store.
type Limiter struct {
	store  Store
	max    int64
	window time.Duration
	log    *zap.Logger
}

// New creates a limiter allowing max attempts per window
func New(store Store, max int64, window time.Duration, log *zap.Logger) *Limiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Limiter{store: store, max: max, window: window, log: log}
}

// Allow records an attempt for the identifier and reports whether it is within
// the policy. Store failures admit the attempt with a logged warning: the
// limiter bounds abuse, it does not gate correctness.
func (l *Limiter) Allow(ctx context.Context, identifier string) bool {
	n, err := l.store.Incr(ctx, identifier, l.window)
	if err != nil {
		l.log.Warn("rate limit store unavailable, admitting attempt",
			zap.String("identifier", identifier),
			zap.Error(err),
		)
		return true
	}
	return n <= l.max
}

// Window returns the configured window length, for client-facing retry hints.
func (l *Limiter) Window() time.Duration { return l.window }
