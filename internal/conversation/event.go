package conversation

// EventKind identifies the webhook event variants the pipeline understands.
type EventKind string

const (
	EventUnknown             EventKind = "unknown"
	EventMessageCreated      EventKind = "message_created"
	EventConversationCreated EventKind = "conversation_created"
	EventStatusChanged       EventKind = "conversation_status_changed"
)

// SenderKind distinguishes who authored a message.
type SenderKind string

const (
	SenderContact SenderKind = "contact"
	SenderAgent   SenderKind = "user"
	SenderUnknown SenderKind = ""
)

// Conversation status carried by lifecycle events.
const (
	StatusOpen     = "open"
	StatusResolved = "resolved"
)

// InboundEvent is the normalized shape of a provider webhook, validated at
// the HTTP boundary before it reaches the pipeline.
type InboundEvent struct {
	Kind           EventKind
	MessageID      int64
	Content        string
	Incoming       bool
	Private        bool
	SenderKind     SenderKind
	SenderName     string
	ConversationID int64
	ContactID      int64
	ContactPhone   string
	ContactName    string
	NewStatus      string
}
