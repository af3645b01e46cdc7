package domain

// SessionStatus defines the lifecycle of a session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// Context key namespaces. Tool results land under "tool.<id>.<property>",
// collected customer input under "collected.<name>".
const (
	ContextNamespaceTool      = "tool"
	ContextNamespaceCollected = "collected"
)

// Session is the runtime instance of a flow being walked for one
// conversation. It is mutated on every step; Context persists collected
// values and tool outputs across suspend/resume points.
//
// Invariant: ActiveNodeID resolves inside ActiveFlowID, or the session is
// ended.
type Session struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id"`
	ConversationID string        `json:"conversation_id"`
	ActiveFlowID   string        `json:"active_flow_id,omitempty"`
	ActiveNodeID   string        `json:"active_node_id,omitempty"`
	Status         SessionStatus     `json:"status"`
	Context        map[string]string `json:"context,omitempty"`
}

// NewSession creates an active session rooted at the given flow and node.
func NewSession(userID, conversationID, flowID, nodeID string) *Session {
	return &Session{
		UserID:         userID,
		ConversationID: conversationID,
		ActiveFlowID:   flowID,
		ActiveNodeID:   nodeID,
		Status:         SessionActive,
		Context:        make(map[string]string),
	}
}

// End marks the session ended and clears the node pointer.
func (s *Session) End() {
	s.Status = SessionEnded
	s.ActiveNodeID = ""
}

// Set stores a context value, initializing the map if needed.
func (s *Session) Set(key, value string) {
	if s.Context == nil {
		s.Context = make(map[string]string)
	}
	s.Context[key] = value
}

// Get returns a context value.
func (s *Session) Get(key string) (string, bool) {
	v, ok := s.Context[key]
	return v, ok
}

// Clone returns a copy with an independent context map, safe to mutate.
func (s *Session) Clone() *Session {
	next := *s
	next.Context = make(map[string]string, len(s.Context))
	for k, v := range s.Context {
		next.Context[k] = v
	}
	return &next
}

// Message is an outbound or inbound conversation message as the persistence
// collaborator stores it.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	Sender         string       `json:"sender"` // "agent" or "customer"
	Content        string       `json:"content"`
	ContentHTML    string       `json:"content_html,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	Buttons        []Button     `json:"buttons,omitempty"`
	Cards          []Card       `json:"cards,omitempty"`
}
