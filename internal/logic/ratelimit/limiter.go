package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/patrickwarner/esimplanner/internal/observability"
)

// ClientLimiter keeps one token bucket per client, created lazily on the
// first request from that client.
//
//	limiter := NewClientLimiter(Config{Capacity: 20, RefillRate: 2, Enabled: true}, metrics)
//	if !limiter.Allow("/optimize", clientIP) {
//	    // 429
//	}
type ClientLimiter struct {
	buckets map[string]*TokenBucket
	mu      sync.RWMutex
	config  Config
	metrics observability.MetricsRegistry
	now     func() time.Time
}

// Config holds the configuration for rate limiting.
type Config struct {
	Capacity   int  // Token bucket capacity (burst allowance)
	RefillRate int  // Tokens added per second (sustained rate)
	Enabled    bool // Whether rate limiting is active
}

// NewClientLimiter creates a limiter with the given configuration.
func NewClientLimiter(config Config, metrics observability.MetricsRegistry) *ClientLimiter {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &ClientLimiter{
		buckets: make(map[string]*TokenBucket),
		config:  config,
		metrics: metrics,
		now:     time.Now,
	}
}

// Allow reports whether clientID may call endpoint now. A disabled limiter
// always allows.
func (cl *ClientLimiter) Allow(endpoint, clientID string) bool {
	if !cl.config.Enabled {
		return true
	}

	cl.mu.RLock()
	bucket, exists := cl.buckets[clientID]
	cl.mu.RUnlock()

	if !exists {
		cl.mu.Lock()
		bucket, exists = cl.buckets[clientID]
		if !exists {
			bucket = newTokenBucket(cl.config.Capacity, cl.config.RefillRate, cl.now)
			cl.buckets[clientID] = bucket
		}
		cl.mu.Unlock()
	}

	allowed := bucket.Allow()
	if !allowed {
		cl.metrics.IncrementRateLimitHits(endpoint)
	}
	return allowed
}

// Sweep drops buckets that have not been touched for idle and returns how
// many were removed.
func (cl *ClientLimiter) Sweep(idle time.Duration) int {
	cutoff := cl.now().Add(-idle)
	cl.mu.Lock()
	defer cl.mu.Unlock()
	removed := 0
	for id, b := range cl.buckets {
		if b.idleSince().Before(cutoff) {
			delete(cl.buckets, id)
			removed++
		}
	}
	return removed
}

// GetStats returns a snapshot of per-client statistics.
func (cl *ClientLimiter) GetStats() map[string]RateLimitStats {
	cl.mu.RLock()
	defer cl.mu.RUnlock()

	stats := make(map[string]RateLimitStats, len(cl.buckets))
	for id, bucket := range cl.buckets {
		hits, total := bucket.Stats()
		hitRate := 0.0
		if total > 0 {
			hitRate = float64(hits) / float64(total)
		}
		stats[id] = RateLimitStats{ClientID: id, Hits: hits, Total: total, HitRate: hitRate}
	}
	return stats
}

// RateLimitStats contains statistics about rate limiting for a single client.
type RateLimitStats struct {
	ClientID string  `json:"client_id"`
	Hits     int64   `json:"hits"`
	Total    int64   `json:"total"`
	HitRate  float64 `json:"hit_rate"`
}

// String returns a human-readable representation of the statistics.
func (rls RateLimitStats) String() string {
	return fmt.Sprintf("Client %s: %d/%d hits (%.2f%%)",
		rls.ClientID, rls.Hits, rls.Total, rls.HitRate*100)
}
