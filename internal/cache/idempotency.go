package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// pendingMarker is stored while the guarded submission is still running.
const pendingMarker = "pending"

// IdempotencyCache remembers which request an Idempotency-Key produced.
// A key is reserved with SETNX before the work starts and bound to the
// created request ID afterwards.
type IdempotencyCache struct {
	redis *RedisClient
	ttl   time.Duration
}

// NewIdempotencyCache creates a new IdempotencyCache.
func NewIdempotencyCache(redis *RedisClient, ttl time.Duration) *IdempotencyCache {
	return &IdempotencyCache{redis: redis, ttl: ttl}
}

// key returns idem:{scope}:{key}.
func (c *IdempotencyCache) key(scope, key string) string {
	return fmt.Sprintf("idem:%s:%s", scope, key)
}

// Reserve claims the key. When it is already taken it returns the bound
// request ID, or 0 while the first submission is still in flight.
func (c *IdempotencyCache) Reserve(ctx context.Context, scope, key string) (int64, bool, error) {
	k := c.key(scope, key)
	ok, err := c.redis.SetNX(ctx, k, pendingMarker, c.ttl)
	if err != nil {
		return 0, false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if ok {
		return 0, true, nil
	}

	val, err := c.redis.Get(ctx, k)
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; treat as in flight and let the client retry.
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read idempotency key: %w", err)
	}
	return parseBound(val), false, nil
}

// Bind records the request created under the key.
func (c *IdempotencyCache) Bind(ctx context.Context, scope, key string, requestID int64) error {
	return c.redis.Set(ctx, c.key(scope, key), strconv.FormatInt(requestID, 10), c.ttl)
}

// Release frees a key whose submission failed so it can be retried.
func (c *IdempotencyCache) Release(ctx context.Context, scope, key string) error {
	return c.redis.Delete(ctx, c.key(scope, key))
}

func parseBound(val string) int64 {
	if val == pendingMarker {
		return 0
	}
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}
