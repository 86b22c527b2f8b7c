package storage

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/arrowlimo/alms/internal/telemetry"
)

// Postgres error codes a write may hit while another session holds the same
// charter or payment rows.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// retryCode returns the SQLSTATE of err when a retry may succeed.
func retryCode(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return pgErr.Code, true
	default:
		return "", false
	}
}

// RetryPolicy bounds how often and how patiently a write is retried.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Logger     *slog.Logger
}

// DefaultRetryPolicy is three retries starting at 50ms.
func DefaultRetryPolicy(logger *slog.Logger) RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: 50 * time.Millisecond, Logger: logger}
}

var retryCounter, _ = telemetry.Meter("alms/storage").Int64Counter("alms.db.retries",
	metric.WithDescription("Transactions retried after a serialization, deadlock or lock timeout error"),
)

// WithRetry runs fn, retrying on serialization failures, deadlocks and lock
// timeouts with jittered exponential backoff. op names the write in logs and
// metrics; attrs (e.g. "run_id", id) are added to the retry log lines.
func WithRetry(ctx context.Context, p RetryPolicy, op string, fn func() error, attrs ...any) error {
	delay := p.BaseDelay
	var err error
	for attempt := range p.MaxRetries + 1 {
		err = fn()
		code, retriable := retryCode(err)
		if err == nil || !retriable {
			return err
		}
		if attempt == p.MaxRetries {
			break
		}
		retryCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("op", op), attribute.String("code", code),
		))
		wait := delay
		if delay > 0 {
			wait += time.Duration(rand.Int64N(int64(delay))) //nolint:gosec // jitter
		}
		if p.Logger != nil {
			p.Logger.Debug("storage: retrying",
				append([]any{"op", op, "code", code, "attempt", attempt + 1, "wait", wait}, attrs...)...)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		delay *= 2
	}
	if p.Logger != nil {
		p.Logger.Warn("storage: retries exhausted", append([]any{"op", op, "error", err}, attrs...)...)
	}
	return err
}
