// Package cache provides a Redis-backed read-through cache for full
// collection listings. Entries are short-lived and invalidated on every
// write to the collection; a cache failure is never fatal to a request.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores the marshaled entity list per collection under a
// prefixed key with a TTL.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisCacheWithClient(client, ttl), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisCache{
		client: client,
		prefix: "list:",
		ttl:    ttl,
	}
}

func (c *RedisCache) key(collection string) string {
	return c.prefix + collection
}

// GetList returns the cached listing for a collection, if present.
func (c *RedisCache) GetList(ctx context.Context, collection string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.key(collection)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", collection, err)
	}
	return data, true, nil
}

// SetList stores the listing for a collection under the configured TTL.
func (c *RedisCache) SetList(ctx context.Context, collection string, payload []byte) error {
	if err := c.client.Set(ctx, c.key(collection), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", collection, err)
	}
	return nil
}

// Invalidate drops the cached listing after a write to the collection.
func (c *RedisCache) Invalidate(ctx context.Context, collection string) error {
	if err := c.client.Del(ctx, c.key(collection)).Err(); err != nil {
		return fmt.Errorf("cache invalidate %s: %w", collection, err)
	}
	return nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
