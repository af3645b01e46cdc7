// Package redis implements the session store and tool-response cache on
// Redis.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/stackmint/botflow/pkg/domain"
)

// SessionStore implements ports.SessionStore using Redis.
type SessionStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// SessionOption configures the SessionStore.
type SessionOption func(*SessionStore)

// WithSessionTTL sets the expiration for stored sessions.
func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(s *SessionStore) { s.ttl = ttl }
}

// WithSessionPrefix sets the key prefix for sessions.
func WithSessionPrefix(prefix string) SessionOption {
	return func(s *SessionStore) { s.prefix = prefix }
}

// NewSessionStore creates a Redis-backed session store from an existing
// client.
func NewSessionStore(client *backend.Client, opts ...SessionOption) *SessionStore {
	store := &SessionStore{
		client: client,
		prefix: "botflow:session:",
		ttl:    0, // No expiration by default
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *SessionStore) key(conversationID string) string {
	return s.prefix + conversationID
}

// Save persists the session as a JSON blob keyed by conversation ID.
func (s *SessionStore) Save(ctx context.Context, session *domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(session.ConversationID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session to redis: %w", err)
	}
	return nil
}

// Load retrieves the session for a conversation.
func (s *SessionStore) Load(ctx context.Context, conversationID string) (*domain.Session, error) {
	val, err := s.client.Get(ctx, s.key(conversationID)).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session from redis: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal([]byte(val), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// Delete removes the session.
func (s *SessionStore) Delete(ctx context.Context, conversationID string) error {
	return s.client.Del(ctx, s.key(conversationID)).Err()
}

// Close closes the underlying client.
func (s *SessionStore) Close() error {
	return s.client.Close()
}
