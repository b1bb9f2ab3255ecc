// Package ratelimit implements a sliding-window request limiter keyed by an
// identifier such as a client IP or an email address. It protects public
// endpoints and is independent of rule matching.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPolicy is returned for a non-positive limit or window.
var ErrInvalidPolicy = errors.New("ratelimit: limit and window must be positive")

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is how long until the oldest hit leaves the window. Zero
	// when the request was allowed.
	RetryAfter time.Duration
}

// Store keeps the hit log of each key. Hit must atomically drop entries
// older than now-window, and record now only when fewer than limit entries
// remain. It returns the number of entries in the window after the call and
// the timestamp of the oldest one.
type Store interface {
	Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (count int, oldest time.Time, allowed bool, err error)
}

// Limiter applies one policy over a Store.
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithPrefix namespaces keys, e.g. "events" vs "login".
func WithPrefix(prefix string) Option {
	return func(l *Limiter) { l.prefix = prefix }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a limiter allowing limit hits per key within any window.
func New(store Store, limit int, window time.Duration, opts ...Option) (*Limiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, ErrInvalidPolicy
	}
	l := &Limiter{store: store, limit: limit, window: window, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Allow records a hit for key if the window has room.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	if l.prefix != "" {
		key = l.prefix + ":" + key
	}
	now := l.now()
	count, oldest, allowed, err := l.store.Hit(ctx, key, l.limit, l.window, now)
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit %s: %w", key, err)
	}

	d := Decision{Allowed: allowed, Limit: l.limit, Remaining: l.limit - count}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !allowed {
		d.RetryAfter = oldest.Add(l.window).Sub(now)
		if d.RetryAfter < 0 {
			d.RetryAfter = 0
		}
	}
	return d, nil
}
