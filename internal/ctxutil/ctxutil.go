// Package ctxutil carries the authenticated caller through a request context.
//
// server populates it in its auth middleware and mcp reads it in tool
// handlers; neither package imports the other.
package ctxutil

import (
	"context"

	"github.com/arrowlimo/alms/internal/auth"
)

type contextKey string

const keyClaims contextKey = "claims"

// WithClaims returns a new context carrying the given claims.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, keyClaims, claims)
}

// ClaimsFromContext extracts the JWT claims from the context.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	if v, ok := ctx.Value(keyClaims).(*auth.Claims); ok {
		return v
	}
	return nil
}

// Actor names the caller for audit columns: prefix:username, or prefix
// alone when the context carries no claims.
func Actor(ctx context.Context, prefix string) string {
	if c := ClaimsFromContext(ctx); c != nil && c.Username != "" {
		return prefix + ":" + c.Username
	}
	return prefix
}
