package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Compile-time interface assertion.
var _ Counter = (*RedisCounter)(nil)

// RedisCounter implements Counter on a Redis client. INCR and EXPIRE NX
// travel in the same transactional pipeline, so the window TTL is stamped
// atomically with the increment and a window costs one round trip. EXPIRE
// NX only sets a TTL on a key that has none, which keeps the window fixed
// rather than sliding and re-stamps a TTL that was lost mid-window.
// Requires Redis 7.0 or newer for the NX option.
type RedisCounter struct {
	client *redis.Client
}

// NewRedisCounter creates a counter backed by the given client.
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

// Incr increments key and stamps the window TTL in the same round trip.
func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr, _ := queueIncrWithWindow(ctx, pipe, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// queueIncrWithWindow queues the increment together with EXPIRE NX on the
// same pipeline. Keeping both in one pipeline means a key can never be left
// counting without a TTL, which would otherwise deny its client identity
// forever once the count passed the limit.
func queueIncrWithWindow(ctx context.Context, pipe redis.Pipeliner, key string, window time.Duration) (*redis.IntCmd, *redis.BoolCmd) {
	incr := pipe.Incr(ctx, key)
	expire := pipe.ExpireNX(ctx, key, window)
	return incr, expire
}
