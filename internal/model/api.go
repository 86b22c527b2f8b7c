package model

import (
	"fmt"
	"time"
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
)

// AuthTokenRequest is the request body for POST /auth/token.
type AuthTokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthTokenResponse is the response for POST /auth/token.
type AuthTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuditRequest is the request body for POST /v1/audits.
type AuditRequest struct {
	Checks  []string `json:"checks,omitempty"`
	Reserve string   `json:"reserve_number,omitempty"`
	Apply   bool     `json:"apply"`
}

// AuditResponse summarizes a finished run.
type AuditResponse struct {
	Run      ReconciliationRun `json:"run"`
	Findings []Finding         `json:"findings"`
}

// CharterDetail is the response for GET /v1/charters/{reserve}.
type CharterDetail struct {
	Ledger   CharterLedger `json:"ledger"`
	Charges  []Charge      `json:"charges"`
	Payments []Payment     `json:"payments"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Postgres string `json:"postgres"`
	Uptime   int64  `json:"uptime_seconds"`
}

// DateRange bounds a report or listing. Zero values mean unbounded.
type DateRange struct {
	From time.Time `json:"from,omitzero"`
	To   time.Time `json:"to,omitzero"`
}

// ParseDateRange parses optional YYYY-MM-DD bounds.
func ParseDateRange(from, to string) (DateRange, error) {
	var r DateRange
	if from != "" {
		t, err := time.Parse(time.DateOnly, from)
		if err != nil {
			return r, fmt.Errorf("invalid from date %q: want YYYY-MM-DD", from)
		}
		r.From = t
	}
	if to != "" {
		t, err := time.Parse(time.DateOnly, to)
		if err != nil {
			return r, fmt.Errorf("invalid to date %q: want YYYY-MM-DD", to)
		}
		r.To = t
	}
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return r, fmt.Errorf("to date %s is before from date %s", to, from)
	}
	return r, nil
}
