package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/arrowlimo/alms/internal/telemetry"
)

type bucket struct {
	tokens float64
	seen   time.Time
}

// MemoryLimiter is an in-process token bucket per key. State is lost on
// restart and not shared between API replicas.
type MemoryLimiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	denied metric.Int64Counter

	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryLimiter starts a limiter for cfg. cfg.Enabled is ignored. Call
// Close to stop the eviction goroutine.
func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	denied, _ := telemetry.Meter("alms/ratelimit").Int64Counter("alms.ratelimit.denied",
		metric.WithDescription("Requests rejected by the rate limiter"),
	)
	m := &MemoryLimiter{
		cfg:     cfg.withDefaults(),
		now:     time.Now,
		buckets: make(map[string]*bucket),
		denied:  denied,
		done:    make(chan struct{}),
	}
	go m.sweep()
	return m
}

// Allow takes one token from key's bucket. A denied key gets the time until
// its bucket next holds a whole token.
func (m *MemoryLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	burst := float64(m.cfg.Burst)
	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{tokens: burst, seen: now}
		m.buckets[key] = b
	} else {
		b.tokens = min(burst, b.tokens+now.Sub(b.seen).Seconds()*m.cfg.RPS)
		b.seen = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return Decision{Allowed: true}, nil
	}
	m.denied.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", keyKind(key))))
	return Decision{RetryAfter: m.waitFor(1 - b.tokens)}, nil
}

func (m *MemoryLimiter) waitFor(missing float64) time.Duration {
	if m.cfg.RPS <= 0 {
		return m.cfg.IdleTTL
	}
	return time.Duration(missing / m.cfg.RPS * float64(time.Second))
}

// keyKind is the part of a key before the first colon ("ip" for "ip:10.0.0.1").
func keyKind(key string) string {
	kind, _, ok := strings.Cut(key, ":")
	if !ok {
		return "other"
	}
	return kind
}

// Close stops the eviction goroutine. Safe to call multiple times.
func (m *MemoryLimiter) Close() error {
	m.stopOnce.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryLimiter) sweep() {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

// evictIdle drops keys untouched for IdleTTL. A dropped key starts again with
// a full bucket, which is what it would have refilled to anyway once
// IdleTTL >= Burst/RPS.
func (m *MemoryLimiter) evictIdle() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.cfg.IdleTTL)
	n := 0
	for key, b := range m.buckets {
		if b.seen.Before(cutoff) {
			delete(m.buckets, key)
			n++
		}
	}
	return n
}
