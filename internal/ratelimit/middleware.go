package ratelimit

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"
)

// KeyFunc extracts the rate limit key from a request.
// An empty key skips rate limiting for the request.
type KeyFunc func(r *http.Request) string

// DeniedFunc writes the response for a rejected request. The server injects
// it so the error uses the API envelope.
type DeniedFunc func(w http.ResponseWriter, r *http.Request)

// Middleware returns HTTP middleware that enforces limiter per key. A denied
// request gets Retry-After in whole seconds, at least 1. Limiter errors are
// logged and the request proceeds.
func Middleware(limiter Limiter, keyFunc KeyFunc, logger *slog.Logger, denied DeniedFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if limiter == nil || key == "" {
				next.ServeHTTP(w, r)
				return
			}
			d, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.Warn("ratelimit: limiter error, allowing request", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !d.Allowed {
				logger.Info("ratelimit: denied", "key", key, "path", r.URL.Path, "retry_after", d.RetryAfter)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(d.RetryAfter)))
				if denied != nil {
					denied(w, r)
				} else {
					http.Error(w, "too many requests", http.StatusTooManyRequests)
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterSeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}

// IPKeyFunc keys on the client IP taken from RemoteAddr. X-Forwarded-For is
// not trusted since any client can set it.
func IPKeyFunc(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}
