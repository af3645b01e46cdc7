package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a held distributed lock.
type UnlockFunc func(ctx context.Context) error

// ConversationLocker provides cross-process mutual exclusion per
// conversation, so only one replica advances a session at a time.
type ConversationLocker interface {
	// Lock blocks until the lock for the key is held or ctx is done.
	// The returned UnlockFunc MUST be called to release it; an unreleased
	// lock expires after ttl.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
