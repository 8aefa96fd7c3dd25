package events

import "context"

// Kind enumerates the real-time events the Ghost Mode core emits. The closed
// set replaces ad-hoc event-name strings so transports and clients share one
// contract.
type Kind string

const (
	KindReceiveMessage    Kind = "ghost-receive-message"
	KindMessageDeleted    Kind = "ghost-message-deleted"
	KindSessionTerminated Kind = "ghost-session-terminated"
	KindPartnerJoined     Kind = "ghost-partner-joined"
	KindPartnerLeft       Kind = "ghost-partner-left"
	KindSecurityEvent     Kind = "ghost-security-event"
)

// Valid reports whether k is one of the defined kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindReceiveMessage, KindMessageDeleted, KindSessionTerminated,
		KindPartnerJoined, KindPartnerLeft, KindSecurityEvent:
		return true
	}
	return false
}

// Event is one real-time notification scoped to a session channel. Payload
// must never carry session keys or PIN plaintext.
type Event struct {
	Kind      Kind           `json:"event"`
	SessionID string         `json:"sessionId"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Publisher delivers events to whoever is subscribed to the session channel.
// Delivery is fire-and-forget; a dropped event only delays a UI update and
// must never fail the calling operation.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Noop drops every event. Used when no transport is configured and in tests.
type Noop struct{}

func (Noop) Publish(context.Context, Event) {}
