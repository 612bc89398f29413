package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/esimplanner/internal/observability"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestTokenBucket_Allow(t *testing.T) {
	clock := newFakeClock()
	bucket := newTokenBucket(5, 1, clock.Now)

	for i := 0; i < 5; i++ {
		assert.True(t, bucket.Allow(), "request %d", i+1)
	}
	assert.False(t, bucket.Allow(), "6th request should be blocked")

	hits, total := bucket.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(6), total)
}

func TestTokenBucket_Refill(t *testing.T) {
	clock := newFakeClock()
	bucket := newTokenBucket(2, 10, clock.Now)
	bucket.Allow()
	bucket.Allow()
	require.False(t, bucket.Allow())

	clock.Advance(50 * time.Millisecond) // half a token
	assert.False(t, bucket.Allow())
	clock.Advance(60 * time.Millisecond) // fraction carries over
	assert.True(t, bucket.Allow())

	clock.Advance(time.Hour)
	assert.True(t, bucket.Allow())
	assert.True(t, bucket.Allow())
	assert.False(t, bucket.Allow(), "refill never exceeds capacity")
}

func TestClientLimiterPerClient(t *testing.T) {
	clock := newFakeClock()
	metrics := observability.NewMockMetricsRegistry()
	cl := NewClientLimiter(Config{Capacity: 1, RefillRate: 1, Enabled: true}, metrics)
	cl.now = clock.Now

	assert.True(t, cl.Allow("/optimize", "a"))
	assert.False(t, cl.Allow("/optimize", "a"))
	assert.True(t, cl.Allow("/optimize", "b"), "clients have separate buckets")
	assert.Equal(t, 1, metrics.RateLimitHits["/optimize"])

	stats := cl.GetStats()
	require.Contains(t, stats, "a")
	assert.Equal(t, int64(1), stats["a"].Hits)
	assert.Equal(t, 0.5, stats["a"].HitRate)
	assert.Contains(t, stats["a"].String(), "Client a")
}

func TestClientLimiterDisabled(t *testing.T) {
	cl := NewClientLimiter(Config{Capacity: 0, RefillRate: 0, Enabled: false}, nil)
	for i := 0; i < 10; i++ {
		assert.True(t, cl.Allow("/optimize", "a"))
	}
	assert.Empty(t, cl.GetStats())
}

func TestClientLimiterSweep(t *testing.T) {
	clock := newFakeClock()
	cl := NewClientLimiter(Config{Capacity: 5, RefillRate: 1, Enabled: true}, nil)
	cl.now = clock.Now

	cl.Allow("/optimize", "old")
	clock.Advance(10 * time.Minute)
	cl.Allow("/optimize", "new")

	assert.Equal(t, 1, cl.Sweep(5*time.Minute))
	stats := cl.GetStats()
	assert.NotContains(t, stats, "old")
	assert.Contains(t, stats, "new")
}
