package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang/snappy"
	"github.com/redis/go-redis/v9"

	"github.com/soltixdb/insight/internal/logging"
	"github.com/soltixdb/insight/internal/metrics"
)

const redisOpTimeout = 2 * time.Second

// RedisConfig configures a RedisCache
type RedisConfig struct {
	URL       string // redis://host:port/db or host:port
	Password  string
	KeyPrefix string
	TTL       time.Duration
}

// RedisCache stores values as snappy-compressed JSON under "<prefix><name>:<key>".
// Lookups that fail on the wire are treated as misses.
type RedisCache[V any] struct {
	client *redis.Client
	name   string
	prefix string
	ttl    time.Duration
	logger *logging.Logger
}

// NewRedisCache connects and pings the server
func NewRedisCache[V any](name string, cfg RedisConfig) (*RedisCache[V], error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		opts = &redis.Options{Addr: cfg.URL, Password: cfg.Password}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRedisCacheWithClient[V](client, name, cfg), nil
}

func newRedisCacheWithClient[V any](client *redis.Client, name string, cfg RedisConfig) *RedisCache[V] {
	return &RedisCache[V]{
		client: client,
		name:   name,
		prefix: cfg.KeyPrefix + name + ":",
		ttl:    cfg.TTL,
		logger: logging.Global().Component("RedisCache").With("cache", name),
	}
}

func (c *RedisCache[V]) key(k string) string {
	return c.prefix + k
}

func encodeValue(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling cache value: %w", err)
	}
	return snappy.Encode(nil, raw), nil
}

func decodeValue(data []byte, out interface{}) error {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return fmt.Errorf("decompressing cache value: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshaling cache value: %w", err)
	}
	return nil
}

// Get returns a cached value
func (c *RedisCache[V]) Get(key string) (V, bool) {
	var zero V
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Cache get failed", "key", key, "error", err)
		}
		metrics.ObserveCache(c.name, false)
		return zero, false
	}

	var v V
	if err := decodeValue(data, &v); err != nil {
		c.logger.Warn("Dropping undecodable cache entry", "key", key, "error", err)
		c.Delete(key)
		metrics.ObserveCache(c.name, false)
		return zero, false
	}

	metrics.ObserveCache(c.name, true)
	return v, true
}

// Set stores a value with the cache TTL
func (c *RedisCache[V]) Set(key string, value V) {
	data, err := encodeValue(value)
	if err != nil {
		c.logger.Warn("Cache set skipped", "key", key, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := c.client.Set(ctx, c.key(key), data, c.ttl).Err(); err != nil {
		c.logger.Warn("Cache set failed", "key", key, "error", err)
	}
}

// Delete removes a key
func (c *RedisCache[V]) Delete(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		c.logger.Warn("Cache delete failed", "key", key, "error", err)
	}
}

// DeletePrefix removes every key under prefix
func (c *RedisCache[V]) DeletePrefix(prefix string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	keys, err := c.scan(ctx, c.key(prefix)+"*")
	if err != nil {
		c.logger.Warn("Cache scan failed", "prefix", prefix, "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("Cache delete failed", "prefix", prefix, "error", err)
	}
}

// Clear removes every key of this cache
func (c *RedisCache[V]) Clear() {
	c.DeletePrefix("")
}

// Len counts the keys of this cache
func (c *RedisCache[V]) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	keys, err := c.scan(ctx, c.prefix+"*")
	if err != nil {
		c.logger.Warn("Cache scan failed", "error", err)
		return 0
	}
	return len(keys)
}

func (c *RedisCache[V]) scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// Close closes the client
func (c *RedisCache[V]) Close() error {
	return c.client.Close()
}

var _ Cache[int] = (*RedisCache[int])(nil)
