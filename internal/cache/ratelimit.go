package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func rateLimitKey(phone string) string {
	return fmt.Sprintf("rate_limit:%s", phone)
}

// CheckRateLimit enforces a message quota per sender phone. At or over the
// limit the counter is left untouched and (false, current) is returned;
// otherwise the counter is incremented and its window refreshed.
//
// Redis failures fail open: denying service because infrastructure is down
// is worse than letting an over-quota message through.
func (c *Cache) CheckRateLimit(ctx context.Context, phone string, maxMessages int, window time.Duration) (bool, int) {
	key := rateLimitKey(phone)

	current, err := c.redis.Get(ctx, key).Int()
	if err != nil && err != redis.Nil {
		c.logger.Warn("rate limit check degraded, allowing message", "error", err)
		return true, 0
	}

	if current >= maxMessages {
		return false, current
	}

	pipe := c.redis.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("rate limit increment degraded, allowing message", "error", err)
		return true, 0
	}

	return true, int(incr.Val())
}

// RateLimitRemaining reports how many messages the phone may still send in
// the current window without mutating the counter.
func (c *Cache) RateLimitRemaining(ctx context.Context, phone string, maxMessages int) int {
	current, err := c.redis.Get(ctx, rateLimitKey(phone)).Int()
	if err != nil && err != redis.Nil {
		c.logger.Warn("rate limit read degraded", "error", err)
		return maxMessages
	}
	remaining := maxMessages - current
	if remaining < 0 {
		return 0
	}
	return remaining
}
