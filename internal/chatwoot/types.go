// Package chatwoot integrates with the Chatwoot REST API and webhooks,
// which front the salon's WhatsApp inbox.
package chatwoot

import (
	"fmt"

	"github.com/beautydesk/salon-assistant/internal/conversation"
)

// Message types on the Chatwoot wire format.
const (
	messageTypeIncoming = "incoming"
	messageTypeOutgoing = "outgoing"
)

// Sender is the author block attached to a webhook message.
type Sender struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	PhoneNumber string `json:"phone_number"`
}

// Contact is a Chatwoot contact record.
type Contact struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	Identifier  string `json:"identifier"`
}

// ConversationMeta nests the contact under conversation payloads.
type ConversationMeta struct {
	Sender *Contact `json:"sender"`
}

// Conversation is the conversation block of a webhook payload or API reply.
type Conversation struct {
	ID     int64            `json:"id"`
	Status string           `json:"status"`
	Meta   ConversationMeta `json:"meta"`
}

// WebhookPayload is the raw body Chatwoot posts to our webhook endpoint.
// Fields are sparse: which ones arrive depends on the event.
type WebhookPayload struct {
	Event        string        `json:"event"`
	ID           int64         `json:"id"`
	Content      string        `json:"content"`
	MessageType  string        `json:"message_type"`
	Private      bool          `json:"private"`
	Sender       *Sender       `json:"sender"`
	Conversation *Conversation `json:"conversation"`
	Status       string        `json:"status"`
}

// Normalize maps the provider payload onto the pipeline's event shape.
// Unknown event names normalize to an unknown kind rather than an error so
// the pipeline can count them.
func (p *WebhookPayload) Normalize() conversation.InboundEvent {
	ev := conversation.InboundEvent{
		Kind:      conversation.EventUnknown,
		MessageID: p.ID,
		Content:   p.Content,
		Private:   p.Private,
		NewStatus: p.Status,
	}

	switch p.Event {
	case "message_created":
		ev.Kind = conversation.EventMessageCreated
		ev.Incoming = p.MessageType == messageTypeIncoming
	case "conversation_created":
		ev.Kind = conversation.EventConversationCreated
	case "conversation_status_changed":
		ev.Kind = conversation.EventStatusChanged
	}

	if p.Sender != nil {
		ev.SenderName = p.Sender.Name
		switch p.Sender.Type {
		case "user", "User":
			ev.SenderKind = conversation.SenderAgent
		case "contact", "Contact":
			ev.SenderKind = conversation.SenderContact
		}
	}

	if p.Conversation != nil {
		ev.ConversationID = p.Conversation.ID
		if ev.NewStatus == "" {
			ev.NewStatus = p.Conversation.Status
		}
		if c := p.Conversation.Meta.Sender; c != nil {
			ev.ContactID = c.ID
			ev.ContactName = c.Name
			ev.ContactPhone = contactPhone(c, p.Conversation.ID)
		}
	}
	// conversation_created events carry the conversation fields at the top
	// level instead of nested.
	if ev.Kind == conversation.EventConversationCreated && ev.ConversationID == 0 {
		ev.ConversationID = p.ID
		ev.MessageID = 0
	}
	return ev
}

// contactPhone resolves the best phone identifier available, falling back
// to a synthetic value so downstream rate limiting always has a key.
func contactPhone(c *Contact, conversationID int64) string {
	if c.PhoneNumber != "" {
		return c.PhoneNumber
	}
	if c.Identifier != "" {
		return c.Identifier
	}
	return fmt.Sprintf("unknown_%d", conversationID)
}
