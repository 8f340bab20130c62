package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		ev   InboundEvent
		want Classification
	}{
		{
			name: "customer message accepted",
			ev: InboundEvent{
				Kind: EventMessageCreated, Incoming: true,
				SenderKind: SenderContact, ConversationID: 1, Content: "hola",
			},
			want: Classification{Action: ActionAccept},
		},
		{
			name: "outgoing message ignored",
			ev:   InboundEvent{Kind: EventMessageCreated, Incoming: false},
			want: Classification{Action: ActionIgnore, Reason: "not_incoming"},
		},
		{
			name: "private note ignored",
			ev:   InboundEvent{Kind: EventMessageCreated, Incoming: true, Private: true},
			want: Classification{Action: ActionIgnore, Reason: "private_message"},
		},
		{
			name: "human agent reply pauses bot",
			ev: InboundEvent{
				Kind: EventMessageCreated, Incoming: true,
				SenderKind: SenderAgent, SenderName: "Laura",
			},
			want: Classification{Action: ActionPauseForHuman, Actor: "Laura"},
		},
		{
			name: "agent reply without name gets generic actor",
			ev:   InboundEvent{Kind: EventMessageCreated, Incoming: true, SenderKind: SenderAgent},
			want: Classification{Action: ActionPauseForHuman, Actor: "Agente"},
		},
		{
			name: "status change is lifecycle",
			ev:   InboundEvent{Kind: EventStatusChanged, NewStatus: "resolved"},
			want: Classification{Action: ActionLifecycle, NewStatus: "resolved"},
		},
		{
			name: "new conversation is lifecycle open",
			ev:   InboundEvent{Kind: EventConversationCreated},
			want: Classification{Action: ActionLifecycle, NewStatus: "open"},
		},
		{
			name: "unknown event ignored",
			ev:   InboundEvent{Kind: EventUnknown},
			want: Classification{Action: ActionIgnore, Reason: "unhandled_event"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.ev))
		})
	}
}
