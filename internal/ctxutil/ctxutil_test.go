package ctxutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arrowlimo/alms/internal/auth"
	"github.com/arrowlimo/alms/internal/model"
)

func TestClaimsRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, ClaimsFromContext(ctx))
	assert.Equal(t, "mcp", Actor(ctx, "mcp"))

	ctx = WithClaims(ctx, &auth.Claims{Username: "dana", Role: model.RoleBookkeeper})
	assert.Equal(t, "dana", ClaimsFromContext(ctx).Username)
	assert.Equal(t, "mcp:dana", Actor(ctx, "mcp"))
}
