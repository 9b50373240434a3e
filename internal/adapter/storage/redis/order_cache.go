package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// OrderCache implements ports.IdempotencyCache: the fast path that answers
// redeliveries of already admitted orders without touching PostgreSQL.
type OrderCache struct {
	client *goredis.Client
	prefix string
}

// NewOrderCache creates a new Redis-backed order cache.
func NewOrderCache(client *goredis.Client) *OrderCache {
	return &OrderCache{
		client: client,
		prefix: "order:",
	}
}

// Get returns nil, nil if the key does not exist.
func (c *OrderCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis order cache get: %w", err)
	}
	return val, nil
}

// Set stores an admitted order under its idempotency key.
func (c *OrderCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis order cache set: %w", err)
	}
	return nil
}
