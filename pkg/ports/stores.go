package ports

import (
	"context"

	"github.com/stackmint/botflow/pkg/domain"
)

// SessionStore persists session state, enabling durable suspend/resume
// across process restarts.
type SessionStore interface {
	// Save persists the session keyed by its conversation ID.
	Save(ctx context.Context, session *domain.Session) error

	// Load retrieves the session for a conversation.
	// Returns domain.ErrSessionNotFound if none exists.
	Load(ctx context.Context, conversationID string) (*domain.Session, error)

	// Delete removes the session for a conversation.
	Delete(ctx context.Context, conversationID string) error
}

// ToolResponseCache stores cached tool responses keyed by request hash.
//
// Upsert must be idempotent (last writer wins on body/timestamp): concurrent
// identical requests race harmlessly to the same row, no external locking.
// Get returns the newest row regardless of age; freshness is the caller's
// read-time concern.
type ToolResponseCache interface {
	// Get returns the cached row for a request key and response type.
	// Returns domain.ErrCacheMiss if no row exists.
	Get(ctx context.Context, requestKey, responseType string) (*domain.ToolResponse, error)

	// Upsert writes the row, replacing any previous row with the same key
	// and type.
	Upsert(ctx context.Context, response *domain.ToolResponse) error
}

// FlowStore resolves flow configuration owned by the collaborator store.
type FlowStore interface {
	// Get returns a flow by ID. Returns domain.ErrFlowNotFound if missing.
	Get(ctx context.Context, flowID string) (*domain.Flow, error)

	// List returns every enabled flow, in configuration order.
	List(ctx context.Context) ([]*domain.Flow, error)

	// IncrementActivations bumps the flow's activation counter.
	IncrementActivations(ctx context.Context, flowID string) error
}

// ToolStore resolves tool configuration.
type ToolStore interface {
	// Get returns a tool by ID. Returns domain.ErrToolNotFound if missing.
	Get(ctx context.Context, toolID string) (*domain.Tool, error)

	// IncrementActivations bumps the tool's activation counter. Called on
	// every invocation attempt, regardless of outcome.
	IncrementActivations(ctx context.Context, toolID string) error
}

// AttributeStore reads and writes the conversation's durable custom
// attributes. The store is owned by an external collaborator; the engine
// reads it during templating and writes through setAttribute/addTags nodes.
type AttributeStore interface {
	Attributes(ctx context.Context, conversationID string) (map[string]string, error)
	SetAttribute(ctx context.Context, conversationID, key, value string) error
	AddTags(ctx context.Context, conversationID string, tags []string) error
}

// ConversationStore persists conversation messages.
type ConversationStore interface {
	// CreateMessage stores an outbound message and returns it with its
	// assigned ID.
	CreateMessage(ctx context.Context, msg domain.Message) (domain.Message, error)
}
