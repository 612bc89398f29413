package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	resultKeyPrefix      = "esimplanner:result:"
	catalogGenerationKey = "esimplanner:catalog:generation"
)

// RedisStore wraps a redis client used for the shared result cache.
type RedisStore struct {
	Client *redis.Client
}

// InitRedis initializes a Redis client and returns a RedisStore.
func InitRedis(addr string) (*RedisStore, error) {
	rs := NewRedisStore(redis.NewClient(&redis.Options{Addr: addr}))

	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := rs.Client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return rs, nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{Client: client}
}

// ResultKey builds the cache key for a request fingerprint under a catalog
// generation. Bumping the generation orphans every older entry.
func ResultKey(generation int64, fingerprint string) string {
	return fmt.Sprintf("%sg%d:%s", resultKeyPrefix, generation, fingerprint)
}

// FlushResults deletes every cached result regardless of generation and
// returns how many keys were removed.
func (r *RedisStore) FlushResults(ctx context.Context) (int, error) {
	var deleted int
	iter := r.Client.Scan(ctx, 0, resultKeyPrefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		if err := r.Client.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, fmt.Errorf("delete cached result: %w", err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scan cached results: %w", err)
	}
	return deleted, nil
}

// GetCachedResult returns the payload stored under key. The boolean is false
// on a cache miss.
func (r *RedisStore) GetCachedResult(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cached result: %w", err)
	}
	return val, true, nil
}

// CacheResult stores payload under key for ttl.
func (r *RedisStore) CacheResult(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if err := r.Client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("cache result: %w", err)
	}
	return nil
}

// CatalogGeneration returns the shared catalog generation, 0 when unset.
func (r *RedisStore) CatalogGeneration(ctx context.Context) (int64, error) {
	gen, err := r.Client.Get(ctx, catalogGenerationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get catalog generation: %w", err)
	}
	return gen, nil
}

// BumpCatalogGeneration advances the shared generation after a catalog
// reload so every instance stops serving stale results.
func (r *RedisStore) BumpCatalogGeneration(ctx context.Context) (int64, error) {
	gen, err := r.Client.Incr(ctx, catalogGenerationKey).Result()
	if err != nil {
		return 0, fmt.Errorf("bump catalog generation: %w", err)
	}
	return gen, nil
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
