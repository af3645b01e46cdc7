// Package memory provides in-memory implementations of every port, used for
// development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/stackmint/botflow/pkg/domain"
)

// SessionStore implements ports.SessionStore in memory.
// Safe for concurrent use.
type SessionStore struct {
	data map[string]*domain.Session
	mu   sync.RWMutex
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{data: make(map[string]*domain.Session)}
}

// Save persists the session keyed by conversation ID.
func (s *SessionStore) Save(ctx context.Context, session *domain.Session) error {
	// Clone to ensure isolation, similar to serialization.
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[session.ConversationID] = session.Clone()
	return nil
}

// Load retrieves the session for a conversation.
func (s *SessionStore) Load(ctx context.Context, conversationID string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.data[conversationID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	// Copy on read so callers can't mutate store state through the pointer.
	return session.Clone(), nil
}

// Delete removes the session.
func (s *SessionStore) Delete(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, conversationID)
	return nil
}

// ToolResponseCache implements ports.ToolResponseCache in memory. Upsert is
// last-writer-wins by (key, type), matching the idempotent-upsert contract.
type ToolResponseCache struct {
	data map[string]*domain.ToolResponse
	mu   sync.RWMutex
}

// NewToolResponseCache creates a new in-memory tool response cache.
func NewToolResponseCache() *ToolResponseCache {
	return &ToolResponseCache{data: make(map[string]*domain.ToolResponse)}
}

func cacheKey(requestKey, responseType string) string {
	return responseType + ":" + requestKey
}

// Get returns the cached row, regardless of age.
func (c *ToolResponseCache) Get(ctx context.Context, requestKey, responseType string) (*domain.ToolResponse, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	row, ok := c.data[cacheKey(requestKey, responseType)]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	copied := *row
	return &copied, nil
}

// Upsert writes the row, replacing any previous row with the same identity.
func (c *ToolResponseCache) Upsert(ctx context.Context, response *domain.ToolResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := *response
	c.data[cacheKey(response.RequestKey, response.Type)] = &copied
	return nil
}

// FlowStore implements ports.FlowStore and ports.ToolStore in memory.
type FlowStore struct {
	flows map[string]*domain.Flow
	tools map[string]*domain.Tool
	mu    sync.RWMutex
}

// NewFlowStore creates an empty flow/tool store.
func NewFlowStore() *FlowStore {
	return &FlowStore{
		flows: make(map[string]*domain.Flow),
		tools: make(map[string]*domain.Tool),
	}
}

// PutFlow registers a flow (test/dev seeding).
func (s *FlowStore) PutFlow(flow *domain.Flow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[flow.ID] = flow
}

// PutTool registers a tool (test/dev seeding).
func (s *FlowStore) PutTool(tool *domain.Tool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools[tool.ID] = tool
}

// Get returns a flow by ID.
func (s *FlowStore) Get(ctx context.Context, flowID string) (*domain.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	flow, ok := s.flows[flowID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrFlowNotFound, flowID)
	}
	return flow, nil
}

// List returns every enabled flow.
func (s *FlowStore) List(ctx context.Context) ([]*domain.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Flow, 0, len(s.flows))
	for _, f := range s.flows {
		if f.Enabled {
			out = append(out, f)
		}
	}
	return out, nil
}

// IncrementActivations bumps a flow's activation counter.
func (s *FlowStore) IncrementActivations(ctx context.Context, flowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	flow, ok := s.flows[flowID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrFlowNotFound, flowID)
	}
	flow.Activations++
	return nil
}

// DeleteNode removes a node from a flow, cascading to every node below it.
// Sessions parked inside the removed subtree end on their next turn.
func (s *FlowStore) DeleteNode(ctx context.Context, flowID, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	flow, ok := s.flows[flowID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrFlowNotFound, flowID)
	}

	doomed := map[string]bool{nodeID: true}
	for _, id := range flow.Descendants(nodeID) {
		doomed[id] = true
	}

	kept := make([]domain.Node, 0, len(flow.Nodes))
	for _, n := range flow.Nodes {
		if !doomed[n.ID] {
			kept = append(kept, n)
		}
	}
	flow.Nodes = kept
	return nil
}

// GetTool returns a tool by ID.
func (s *FlowStore) GetTool(ctx context.Context, toolID string) (*domain.Tool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tool, ok := s.tools[toolID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrToolNotFound, toolID)
	}
	return tool, nil
}

// IncrementToolActivations bumps a tool's activation counter.
func (s *FlowStore) IncrementToolActivations(ctx context.Context, toolID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tool, ok := s.tools[toolID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrToolNotFound, toolID)
	}
	tool.Activations++
	return nil
}

// ToolStore adapts FlowStore to the ports.ToolStore interface.
type ToolStore struct {
	*FlowStore
}

// Tools returns a ports.ToolStore view over the flow store.
func (s *FlowStore) Tools() *ToolStore {
	return &ToolStore{FlowStore: s}
}

// Get returns a tool by ID.
func (s *ToolStore) Get(ctx context.Context, toolID string) (*domain.Tool, error) {
	return s.GetTool(ctx, toolID)
}

// IncrementActivations bumps the tool's activation counter.
func (s *ToolStore) IncrementActivations(ctx context.Context, toolID string) error {
	return s.IncrementToolActivations(ctx, toolID)
}

// AttributeStore implements ports.AttributeStore in memory.
type AttributeStore struct {
	attrs map[string]map[string]string
	tags  map[string][]string
	mu    sync.RWMutex
}

// NewAttributeStore creates an empty attribute store.
func NewAttributeStore() *AttributeStore {
	return &AttributeStore{
		attrs: make(map[string]map[string]string),
		tags:  make(map[string][]string),
	}
}

// Attributes returns a snapshot of the conversation's attributes.
func (s *AttributeStore) Attributes(ctx context.Context, conversationID string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.attrs[conversationID]))
	for k, v := range s.attrs[conversationID] {
		out[k] = v
	}
	return out, nil
}

// SetAttribute writes one attribute.
func (s *AttributeStore) SetAttribute(ctx context.Context, conversationID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attrs[conversationID] == nil {
		s.attrs[conversationID] = make(map[string]string)
	}
	s.attrs[conversationID][key] = value
	return nil
}

// AddTags appends tags, skipping duplicates.
func (s *AttributeStore) AddTags(ctx context.Context, conversationID string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.tags[conversationID]
	for _, tag := range tags {
		seen := false
		for _, have := range existing {
			if have == tag {
				seen = true
				break
			}
		}
		if !seen {
			existing = append(existing, tag)
		}
	}
	s.tags[conversationID] = existing
	return nil
}

// Tags returns the conversation's tags (test inspection).
func (s *AttributeStore) Tags(conversationID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.tags[conversationID]))
	copy(out, s.tags[conversationID])
	return out
}

// ConversationStore implements ports.ConversationStore in memory.
type ConversationStore struct {
	messages map[string][]domain.Message
	nextID   int
	mu       sync.Mutex
}

// NewConversationStore creates an empty conversation store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{messages: make(map[string][]domain.Message)}
}

// CreateMessage stores the message and assigns a sequential ID.
func (s *ConversationStore) CreateMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	msg.ID = fmt.Sprintf("msg-%d", s.nextID)
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], msg)
	return msg, nil
}

// Messages returns the stored messages for a conversation (test inspection).
func (s *ConversationStore) Messages(conversationID string) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, len(s.messages[conversationID]))
	copy(out, s.messages[conversationID])
	return out
}
