package redisx

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-bookstore-orders/internal/reconcile"
)

func TestReplayStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s := NewReplayStore(rdb)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "FT1")
	require.NoError(t, err)
	assert.False(t, ok)

	first := reconcile.WebhookOutcome{Success: true, Message: "payment confirmed", OrderID: 7, TransactionCode: "FT1"}
	require.NoError(t, s.Put(ctx, "FT1", first))
	require.NoError(t, s.Put(ctx, "FT1", reconcile.WebhookOutcome{Success: true, Message: "order already paid"}))

	got, ok, err := s.Get(ctx, "FT1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, first, got)

	assert.Equal(t, TTLReplay, mr.TTL("webhook:sepay:FT1"))

	exists, err := Exists(ctx, rdb, "webhook:sepay:FT1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestReplayStore_CorruptValue(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	require.NoError(t, mr.Set("webhook:sepay:BAD", "{"))
	_, ok, err := NewReplayStore(rdb).Get(context.Background(), "BAD")
	assert.Error(t, err)
	assert.False(t, ok)
}
