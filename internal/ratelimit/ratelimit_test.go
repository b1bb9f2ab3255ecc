package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newMemoryLimiter(t *testing.T, limit int, window time.Duration) (*Limiter, *MemoryStore, *fakeClock) {
	t.Helper()
	store := NewMemoryStore(time.Hour, window)
	t.Cleanup(func() { store.Close() })
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	l, err := New(store, limit, window, WithClock(clock.Now))
	require.NoError(t, err)
	return l, store, clock
}

func TestLimiter_SlidingWindow(t *testing.T) {
	l, _, clock := newMemoryLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "hit %d", i)
		assert.Equal(t, 2-i, d.Remaining)
		clock.Advance(10 * time.Second)
	}

	d, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 30*time.Second, d.RetryAfter)

	// A denied hit is not recorded, so the first hit expires on schedule.
	clock.Advance(31 * time.Second)
	d, err = l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l, _, _ := newMemoryLimiter(t, 1, time.Minute)
	ctx := context.Background()

	d, _ := l.Allow(ctx, "a@x.com")
	assert.True(t, d.Allowed)
	d, _ = l.Allow(ctx, "a@x.com")
	assert.False(t, d.Allowed)
	d, _ = l.Allow(ctx, "b@x.com")
	assert.True(t, d.Allowed)
}

func TestLimiter_Prefix(t *testing.T) {
	store := NewMemoryStore(time.Hour, time.Minute)
	defer store.Close()
	events, err := New(store, 1, time.Minute, WithPrefix("events"))
	require.NoError(t, err)
	login, err := New(store, 1, time.Minute, WithPrefix("login"))
	require.NoError(t, err)

	d, _ := events.Allow(context.Background(), "ip")
	assert.True(t, d.Allowed)
	d, _ = login.Allow(context.Background(), "ip")
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, store.Len())
}

func TestNew_InvalidPolicy(t *testing.T) {
	_, err := New(nil, 0, time.Minute)
	assert.ErrorIs(t, err, ErrInvalidPolicy)
	_, err = New(nil, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestMemoryStore_Concurrent(t *testing.T) {
	store := NewMemoryStore(time.Hour, time.Minute)
	defer store.Close()
	l, err := New(store, 50, time.Minute)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Allow(context.Background(), "shared")
			assert.NoError(t, err)
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}

func TestMemoryStore_Sweep(t *testing.T) {
	store := NewMemoryStore(time.Hour, time.Minute)
	defer store.Close()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _, _, err := store.Hit(ctx, fmt.Sprintf("k%d", i), 10, time.Minute, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}
	assert.Equal(t, 5, store.Len())

	store.Sweep(base.Add(4*time.Minute + 30*time.Second))
	assert.Equal(t, 1, store.Len(), "only k4 is younger than a minute")
}

func TestMemoryStore_BackgroundSweep(t *testing.T) {
	store := NewMemoryStore(10*time.Millisecond, time.Millisecond)
	_, _, _, err := store.Hit(context.Background(), "k", 1, time.Millisecond, time.Now().Add(-time.Second))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
}

func TestRedisStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	client := DialRedis("localhost:6379", "", 0)
	defer client.Close()
	ctx := context.Background()
	store := NewRedisStore(client, fmt.Sprintf("bizflow:test:%d", time.Now().UnixNano()))
	if err := store.Ping(ctx); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}

	l, err := New(store, 2, time.Second)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		d, err := l.Allow(ctx, "actor")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	d, err := l.Allow(ctx, "actor")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))

	time.Sleep(1100 * time.Millisecond)
	d, err = l.Allow(ctx, "actor")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}
