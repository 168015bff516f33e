package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// IdempotencyCache implements ports.IdempotencyCache. It holds stored
// decision payloads keyed by fingerprint so replays of recent requests skip
// the database entirely. The durable store stays authoritative; anything
// evicted here falls through to it.
type IdempotencyCache struct {
	client *goredis.Client
	prefix string
}

// NewIdempotencyCache creates a new Redis-backed idempotency cache.
func NewIdempotencyCache(client *goredis.Client) *IdempotencyCache {
	return &IdempotencyCache{
		client: client,
		prefix: "idempotency:",
	}
}

// Get retrieves a cached decision payload by fingerprint.
// Returns nil, nil if the fingerprint is not cached.
func (c *IdempotencyCache) Get(ctx context.Context, fingerprint string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+fingerprint).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis idempotency get: %w", err)
	}
	return val, nil
}

// Set stores a decision payload with TTL.
func (c *IdempotencyCache) Set(ctx context.Context, fingerprint string, value []byte, ttl time.Duration) error {
	err := c.client.Set(ctx, c.prefix+fingerprint, value, ttl).Err()
	if err != nil {
		return fmt.Errorf("redis idempotency set: %w", err)
	}
	return nil
}
