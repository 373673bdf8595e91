package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements Cache backed by Redis.
//
// Intended for build farms where many wheelwright runs share one metadata
// cache. Expiration is delegated to Redis key TTLs.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// RedisConfig configures a Redis cache connection.
type RedisConfig struct {
	Addr     string // host:port, e.g. "localhost:6379"
	Password string // empty for no auth
	DB       int    // redis database number
	Prefix   string // key prefix, defaults to "wheelwright:"
}

// NewRedisCache connects to Redis and verifies the connection with a ping.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (Cache, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "wheelwright:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisCache{client: client, prefix: cfg.Prefix}, nil
}

// Get retrieves a value from Redis. A missing key is a cache miss, not an error.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set stores a value with the given TTL. A TTL of 0 stores without expiration.
func (c *RedisCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.key(key), data, ttl).Err()
}

// Delete removes a value. Deleting a missing key is not an error.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

// Close closes the underlying Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// key hashes the caller's key under the configured prefix. Hashing keeps
// arbitrarily long namespaced keys within Redis key-size norms.
func (c *RedisCache) key(key string) string {
	return c.prefix + Hash([]byte(key))
}

// Ensure RedisCache implements Cache.
var _ Cache = (*RedisCache)(nil)
