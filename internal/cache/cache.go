package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/beautydesk/salon-assistant/pkg/logging"
)

// Cache keys for slowly-changing salon reference data.
const (
	KeyServices        = "salon:services"
	KeyStylists        = "salon:stylists"
	KeySalonInfo       = "salon:info"
	KeyHandoffKeywords = "salon:handoff_keywords"
)

// Cache wraps Redis with the ephemeral state the conversation pipeline
// shares across tasks: rate-limit counters, pending message queues,
// processing locks, conversation context, and reference-data caches.
type Cache struct {
	redis  *redis.Client
	logger *logging.Logger
}

// New creates a Cache backed by the given Redis client.
func New(client *redis.Client, logger *logging.Logger) *Cache {
	if client == nil {
		panic("cache: redis client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Cache{redis: client, logger: logger}
}

// Ping reports whether Redis is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// GetJSON loads key into dest. Returns false when the key is absent.
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores value under key with the given TTL. A zero TTL means no expiry.
func (c *Cache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	if err := c.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

// Delete removes a key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache: delete %s: %w", key, err)
	}
	return nil
}

// ReadThrough returns the cached value at key, loading and populating it via
// load on a miss. Cache failures degrade to the loader so a cold or broken
// Redis never hides durable data.
func ReadThrough[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var cached T
	hit, err := c.GetJSON(ctx, key, &cached)
	if err != nil {
		c.logger.Warn("cache read degraded, falling back to source", "key", key, "error", err)
	}
	if hit {
		return cached, nil
	}

	loaded, err := load(ctx)
	if err != nil {
		return cached, err
	}
	if err := c.SetJSON(ctx, key, loaded, ttl); err != nil {
		c.logger.Warn("cache populate failed", "key", key, "error", err)
	}
	return loaded, nil
}
