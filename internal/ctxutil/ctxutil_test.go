package ctxutil_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rolecraft/turneval/internal/auth"
	"github.com/rolecraft/turneval/internal/ctxutil"
	"github.com/rolecraft/turneval/internal/model"
)

func TestClaimsRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, ctxutil.ClaimsFromContext(ctx))
	assert.Empty(t, ctxutil.ClientIDFromContext(ctx))

	claims := &auth.Claims{ClientID: "runner", Role: model.ClientEvaluator}
	ctx = ctxutil.WithClaims(ctx, claims)
	assert.Same(t, claims, ctxutil.ClaimsFromContext(ctx))
	assert.Equal(t, "runner", ctxutil.ClientIDFromContext(ctx))
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, ctxutil.RequestIDFromContext(ctx))
	ctx = ctxutil.WithRequestID(ctx, "req-42")
	assert.Equal(t, "req-42", ctxutil.RequestIDFromContext(ctx))
}
