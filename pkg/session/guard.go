// Package session serializes conversation turns. The engine assumes at most
// one turn per conversation runs at a time; the Guard enforces that with
// reference-counted per-conversation locks, optionally backed by a
// distributed locker when the engine runs on more than one replica.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stackmint/botflow/internal/logging"
	"github.com/stackmint/botflow/pkg/ports"
)

// lockEntry holds a conversation's mutex and its reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Guard serializes turns per conversation. Lock entries are garbage
// collected by reference counting, so idle conversations cost nothing.
type Guard struct {
	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.ConversationLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Guard.
type Option func(*Guard)

// WithLocker enables cross-process locking.
func WithLocker(locker ports.ConversationLocker) Option {
	return func(g *Guard) { g.locker = locker }
}

// WithLockTTL overrides the distributed lock expiry.
func WithLockTTL(ttl time.Duration) Option {
	return func(g *Guard) { g.lockTTL = ttl }
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) { g.logger = logger }
}

// NewGuard creates a turn guard.
func NewGuard(opts ...Option) *Guard {
	g := &Guard{
		locks:   make(map[string]*lockEntry),
		lockTTL: 30 * time.Second,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// acquire gets or creates the entry and bumps its refcount. The caller locks
// entry.mu and must pair this with release after unlocking.
func (g *Guard) acquire(conversationID string) *lockEntry {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.locks[conversationID]
	if !ok {
		entry = &lockEntry{}
		g.locks[conversationID] = entry
	}
	entry.refs++
	return entry
}

// release drops one reference and deletes the entry at zero.
func (g *Guard) release(conversationID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.locks[conversationID]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(g.locks, conversationID)
	}
}

// WithLock runs fn while holding the conversation's lock.
func (g *Guard) WithLock(ctx context.Context, conversationID string, fn func(context.Context) error) error {
	entry := g.acquire(conversationID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		g.release(conversationID)
	}()

	if g.locker != nil {
		unlock, err := g.locker.Lock(ctx, conversationID, g.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire conversation lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				g.logger.Warn("failed to release conversation lock (will expire via TTL)",
					"conversation_id", conversationID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
