package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/socialbet/internal/domain"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestLockIsExclusiveUntilReleased(t *testing.T) {
	c, _ := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	l, err := lm.Acquire(ctx, "exchange", time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "exchange", time.Minute)
	require.ErrorIs(t, err, domain.ErrLockHeld)

	require.NoError(t, l.Refresh(ctx, time.Minute))
	require.NoError(t, l.Release(ctx))
	require.NoError(t, l.Release(ctx))

	l2, err := lm.Acquire(ctx, "exchange", time.Minute)
	require.NoError(t, err)
	require.NoError(t, l2.Release(ctx))
}

func TestLockRefreshFailsAfterExpiry(t *testing.T) {
	c, mr := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	l, err := lm.Acquire(ctx, "exchange", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	other, err := lm.Acquire(ctx, "exchange", time.Minute)
	require.NoError(t, err)

	require.ErrorIs(t, l.Refresh(ctx, time.Minute), domain.ErrLockHeld)
	// A stale holder must not release the new holder's lock.
	require.NoError(t, l.Release(ctx))
	_, err = lm.Acquire(ctx, "exchange", time.Minute)
	require.ErrorIs(t, err, domain.ErrLockHeld)
	require.NoError(t, other.Release(ctx))
}

func TestRateLimiterAllowsUpToLimit(t *testing.T) {
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "0xabc", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, "0xabc", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rl.Allow(ctx, "0xdef", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSignalBusStream(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c)
	ctx := context.Background()

	require.NoError(t, bus.StreamAppend(ctx, "exchange.log", []byte("a")))
	require.NoError(t, bus.StreamAppend(ctx, "exchange.log", []byte("b")))

	msgs, err := bus.StreamRead(ctx, "exchange.log", "0", 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, []byte("a"), msgs[0].Payload)
	assert.Equal(t, []byte("b"), msgs[1].Payload)

	msgs, err = bus.StreamRead(ctx, "exchange.log", msgs[1].ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSignalBusPatternSubscribe(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, "exchange.*")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "exchange.new-offer", []byte("offer")))
	select {
	case got := <-ch:
		assert.Equal(t, []byte("offer"), got)
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
	}

	cancel()
	select {
	case _, open := <-ch:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed after cancel")
	}
}
