// Package stream defines the typed server-to-client event protocol and its
// SSE wire form.
//
// A conversation turn is one push-style sequence of events: zero or more
// delta fragments, message envelopes (typing, rendered snapshots, persisted
// messages) and diagnostic debug frames, terminated by exactly one endStream.
package stream

import "github.com/stackmint/botflow/pkg/domain"

// EventName is the SSE event field of a frame.
type EventName string

const (
	// EventDelta carries one incremental text fragment.
	EventDelta EventName = "delta"
	// EventMessage carries a typed message envelope.
	EventMessage EventName = "message"
	// EventDebug carries diagnostics, ignored in production.
	EventDebug EventName = "debug"
)

// Message envelope types.
const (
	MessageTypeTyping              = "typing"
	MessageTypeFormattedHTML       = "formattedHtml"
	MessageTypeCreated             = "messageCreated"
	MessageTypeConversationCreated = "conversationCreated"
	MessageTypeEndStream           = "endStream"
	MessageTypeEndDeltaStream      = "endDeltaStream"
)

// Terminal marker values.
const (
	EndValue      = "[END]"
	EndDeltaValue = "[END_DELTA]"
)

// Event is one typed frame of the stream.
type Event struct {
	Name    EventName
	Payload any
}

// DeltaPayload is the body of a delta frame.
type DeltaPayload struct {
	Delta string `json:"delta"`
}

// MessagePayload is the body of a message frame. At most one of the optional
// fields is populated, according to Type.
type MessagePayload struct {
	Type    string          `json:"type"`
	Content string          `json:"content,omitempty"`
	Message *domain.Message `json:"message,omitempty"`
	Data    any             `json:"data,omitempty"`
	Value   string          `json:"value,omitempty"`
}

// DebugPayload is the body of a debug frame.
type DebugPayload struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Delta builds a delta frame.
func Delta(text string) Event {
	return Event{Name: EventDelta, Payload: DeltaPayload{Delta: text}}
}

// Typing builds the typing-indicator frame.
func Typing() Event {
	return Event{Name: EventMessage, Payload: MessagePayload{Type: MessageTypeTyping}}
}

// FormattedHTML builds a rendered-snapshot frame.
func FormattedHTML(content string) Event {
	return Event{Name: EventMessage, Payload: MessagePayload{Type: MessageTypeFormattedHTML, Content: content}}
}

// MessageCreated builds the frame announcing a persisted message.
func MessageCreated(msg domain.Message) Event {
	return Event{Name: EventMessage, Payload: MessagePayload{Type: MessageTypeCreated, Message: &msg}}
}

// ConversationCreated builds the frame announcing a new conversation.
func ConversationCreated(data any) Event {
	return Event{Name: EventMessage, Payload: MessagePayload{Type: MessageTypeConversationCreated, Data: data}}
}

// EndStream builds the authoritative terminal frame.
func EndStream() Event {
	return Event{Name: EventMessage, Payload: MessagePayload{Type: MessageTypeEndStream, Value: EndValue}}
}

// EndDeltaStream builds the frame closing the delta phase of a turn.
func EndDeltaStream() Event {
	return Event{Name: EventMessage, Payload: MessagePayload{Type: MessageTypeEndDeltaStream, Value: EndDeltaValue}}
}

// Debug builds a diagnostic frame.
func Debug(kind string, data any) Event {
	return Event{Name: EventDebug, Payload: DebugPayload{Type: kind, Data: data}}
}

// DeltaText returns the fragment of a delta frame.
func (e Event) DeltaText() (string, bool) {
	p, ok := e.Payload.(DeltaPayload)
	if !ok {
		return "", false
	}
	return p.Delta, true
}

// MessageType returns the envelope type of a message frame, or "".
func (e Event) MessageType() string {
	p, ok := e.Payload.(MessagePayload)
	if !ok {
		return ""
	}
	return p.Type
}

// IsEnd reports whether the frame is the authoritative endStream.
func (e Event) IsEnd() bool {
	return e.MessageType() == MessageTypeEndStream
}
