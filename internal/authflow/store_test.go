package authflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_TakeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	flow := NewFlow(ProtocolSAML, "Sign in")

	require.NoError(t, store.Put(ctx, flow.CorrelationToken, flow))
	assert.Equal(t, 1, store.Len())

	got, err := store.Take(ctx, flow.CorrelationToken)
	require.NoError(t, err)
	assert.Same(t, flow, got)
	assert.Zero(t, store.Len())

	_, err = store.Take(ctx, flow.CorrelationToken)
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestMemoryStore_UnknownToken(t *testing.T) {
	_, err := NewMemoryStore(0).Take(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }

	flow := NewFlow(ProtocolOAuth2, "")
	require.NoError(t, store.Put(ctx, "token", flow))

	now = now.Add(2 * time.Minute)
	_, err := store.Take(ctx, "token")
	assert.ErrorIs(t, err, ErrFlowNotFound)
	assert.Zero(t, store.Len(), "expired entries are removed on take")
}

func TestMemoryStore_PutReplaces(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	first := NewFlow(ProtocolSAML, "first")
	second := NewFlow(ProtocolSAML, "second")

	require.NoError(t, store.Put(ctx, "token", first))
	require.NoError(t, store.Put(ctx, "token", second))

	got, err := store.Take(ctx, "token")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Title)
}
