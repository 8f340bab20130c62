package conversation

// Action is the intake classifier's verdict for an inbound event.
type Action int

const (
	// ActionIgnore drops the event; Reason names why.
	ActionIgnore Action = iota
	// ActionPauseForHuman suspends the bot because a human operator replied.
	ActionPauseForHuman
	// ActionAccept admits customer content into the coalescing pipeline.
	ActionAccept
	// ActionLifecycle signals a conversation status transition.
	ActionLifecycle
)

// Classification is the result of classifying one inbound event.
type Classification struct {
	Action    Action
	Reason    string
	Actor     string
	NewStatus string
}

// Classify inspects a normalized inbound event and decides how the pipeline
// should treat it. Classification is pure; the caller applies the resulting
// state transitions before any further processing of the event.
func Classify(ev InboundEvent) Classification {
	switch ev.Kind {
	case EventMessageCreated:
		return classifyMessage(ev)
	case EventConversationCreated:
		return Classification{Action: ActionLifecycle, NewStatus: StatusOpen}
	case EventStatusChanged:
		return Classification{Action: ActionLifecycle, NewStatus: ev.NewStatus}
	default:
		return Classification{Action: ActionIgnore, Reason: "unhandled_event"}
	}
}

func classifyMessage(ev InboundEvent) Classification {
	if !ev.Incoming {
		return Classification{Action: ActionIgnore, Reason: "not_incoming"}
	}
	if ev.Private {
		return Classification{Action: ActionIgnore, Reason: "private_message"}
	}
	if ev.SenderKind == SenderAgent {
		actor := ev.SenderName
		if actor == "" {
			actor = "Agente"
		}
		return Classification{Action: ActionPauseForHuman, Actor: actor}
	}
	return Classification{Action: ActionAccept}
}
