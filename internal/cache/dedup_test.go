package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGuard(t *testing.T) (*miniredis.Miniredis, DeliveryGuard) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewRedisDeliveryGuard(rdb, time.Hour)
}

func TestRedisDeliveryGuard_ClaimOnce(t *testing.T) {
	mr, g := newGuard(t)
	ctx := context.Background()

	first, err := g.Claim(ctx, "MIDTRANS", "tx-1:settlement:200")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := g.Claim(ctx, "MIDTRANS", "tx-1:settlement:200")
	require.NoError(t, err)
	assert.False(t, again)

	other, err := g.Claim(ctx, "PAYPAL", "tx-1:settlement:200")
	require.NoError(t, err)
	assert.True(t, other)

	assert.True(t, mr.Exists("dedup:webhook:MIDTRANS:tx-1:settlement:200"))
	assert.Equal(t, time.Hour, mr.TTL("dedup:webhook:MIDTRANS:tx-1:settlement:200"))
}

func TestRedisDeliveryGuard_ReleaseAndExpiry(t *testing.T) {
	mr, g := newGuard(t)
	ctx := context.Background()

	_, err := g.Claim(ctx, "PAYPAL", "WH-1")
	require.NoError(t, err)
	require.NoError(t, g.Release(ctx, "PAYPAL", "WH-1"))

	ok, err := g.Claim(ctx, "PAYPAL", "WH-1")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Hour)
	ok, err = g.Claim(ctx, "PAYPAL", "WH-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisDeliveryGuard_ServerDown(t *testing.T) {
	mr, g := newGuard(t)
	mr.Close()

	_, err := g.Claim(context.Background(), "PAYPAL", "WH-1")
	assert.Error(t, err)
}

func TestNopDeliveryGuard(t *testing.T) {
	g := NewNopDeliveryGuard()
	for i := 0; i < 3; i++ {
		ok, err := g.Claim(context.Background(), "MIDTRANS", "k")
		require.NoError(t, err)
		assert.True(t, ok)
	}
}
