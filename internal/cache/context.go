package cache

import (
	"context"
	"fmt"
	"time"
)

// Context roles for conversation history entries.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ContextEntry is one turn of short-term conversational memory.
type ContextEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func contextKey(conversationID int64) string {
	return fmt.Sprintf("conversation_context:%d", conversationID)
}

// ConversationContext returns the rolling context window, or nil when absent.
func (c *Cache) ConversationContext(ctx context.Context, conversationID int64) ([]ContextEntry, error) {
	var entries []ContextEntry
	if _, err := c.GetJSON(ctx, contextKey(conversationID), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// SetConversationContext replaces the rolling context window.
func (c *Cache) SetConversationContext(ctx context.Context, conversationID int64, entries []ContextEntry, ttl time.Duration) error {
	return c.SetJSON(ctx, contextKey(conversationID), entries, ttl)
}

// ClearConversationContext drops the context window. Called on every pause
// and reactivation so stale context never leaks across a human handoff.
func (c *Cache) ClearConversationContext(ctx context.Context, conversationID int64) error {
	return c.Delete(ctx, contextKey(conversationID))
}
