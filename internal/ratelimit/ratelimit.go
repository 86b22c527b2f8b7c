// Package ratelimit throttles unauthenticated endpoints, chiefly the password
// exchange at POST /auth/token, with a token bucket per client key.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed bool
	// RetryAfter is how long the key waits for its next token. Zero when allowed.
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key should be allowed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow takes one token for key. Keys are opaque, e.g. "ip:10.0.0.1".
	// An error signals a limiter malfunction and callers fail open.
	Allow(ctx context.Context, key string) (Decision, error)

	// Close releases resources (cleanup goroutines, connections).
	Close() error
}

// Config is the limiter configuration, filled from the ALMS_RATE_LIMIT_*
// settings.
type Config struct {
	Enabled bool
	RPS     float64 // tokens refilled per second per key
	Burst   int     // bucket capacity
	// IdleTTL is how long an untouched key is kept. Defaults to 10 minutes.
	IdleTTL time.Duration
	// SweepInterval is how often idle keys are evicted. Defaults to 1 minute.
	SweepInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.IdleTTL <= 0 {
		c.IdleTTL = 10 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	return c
}

// New returns a MemoryLimiter for cfg, or a NoopLimiter when cfg is disabled.
func New(cfg Config) Limiter {
	if !cfg.Enabled {
		return NoopLimiter{}
	}
	return NewMemoryLimiter(cfg)
}

// NoopLimiter permits every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// Allow always allows.
func (NoopLimiter) Allow(context.Context, string) (Decision, error) {
	return Decision{Allowed: true}, nil
}

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }
