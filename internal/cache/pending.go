package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PendingMessage is one buffered inbound message awaiting coalescing.
type PendingMessage struct {
	Content    string    `json:"content"`
	ReceivedAt time.Time `json:"received_at"`
	MessageID  int64     `json:"message_id,omitempty"`
}

func pendingKey(conversationID int64) string {
	return fmt.Sprintf("pending_messages:%d", conversationID)
}

func lockKey(conversationID int64) string {
	return fmt.Sprintf("processing_lock:%d", conversationID)
}

// AppendPendingMessage pushes msg onto the conversation's buffer and
// refreshes its TTL. The buffer is a Redis list, so concurrent webhook
// deliveries for the same conversation never lose a message to a
// read-modify-write race. Returns the buffer length including msg.
func (c *Cache) AppendPendingMessage(ctx context.Context, conversationID int64, msg PendingMessage, ttl time.Duration) (int, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("cache: encode pending %d: %w", conversationID, err)
	}

	key := pendingKey(conversationID)
	pipe := c.redis.TxPipeline()
	push := pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("cache: append pending %d: %w", conversationID, err)
	}
	return int(push.Val()), nil
}

// DrainPendingMessages atomically reads and clears the conversation's buffer.
// Only the holder of the processing lock may call this.
func (c *Cache) DrainPendingMessages(ctx context.Context, conversationID int64) ([]PendingMessage, error) {
	key := pendingKey(conversationID)

	pipe := c.redis.TxPipeline()
	list := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("cache: drain pending %d: %w", conversationID, err)
	}

	raw := list.Val()
	if len(raw) == 0 {
		return nil, nil
	}
	messages := make([]PendingMessage, 0, len(raw))
	for _, item := range raw {
		var m PendingMessage
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("cache: decode pending %d: %w", conversationID, err)
		}
		messages = append(messages, m)
	}
	return messages, nil
}

// ClearPendingMessages drops any buffered messages without processing them.
func (c *Cache) ClearPendingMessages(ctx context.Context, conversationID int64) error {
	if err := c.redis.Del(ctx, pendingKey(conversationID)).Err(); err != nil {
		return fmt.Errorf("cache: clear pending %d: %w", conversationID, err)
	}
	return nil
}

// AcquireProcessingLock takes the per-conversation mutual-exclusion token.
// Returns false when another processing attempt already holds it, or when
// Redis is unreachable (abandoning the firing is the safe fallback).
func (c *Cache) AcquireProcessingLock(ctx context.Context, conversationID int64, ttl time.Duration) bool {
	ok, err := c.redis.SetNX(ctx, lockKey(conversationID), "1", ttl).Result()
	if err != nil {
		c.logger.Warn("processing lock acquire degraded", "conversation_id", conversationID, "error", err)
		return false
	}
	return ok
}

// ReleaseProcessingLock frees the token. The TTL bounds the damage if the
// holder crashes before reaching this.
func (c *Cache) ReleaseProcessingLock(ctx context.Context, conversationID int64) {
	if err := c.redis.Del(ctx, lockKey(conversationID)).Err(); err != nil {
		c.logger.Warn("processing lock release failed", "conversation_id", conversationID, "error", err)
	}
}
