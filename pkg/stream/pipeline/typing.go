package pipeline

import (
	"context"
	"time"

	"github.com/stackmint/botflow/pkg/stream"
)

// DefaultTypingFloor is the minimum time a typing indicator stays visible.
const DefaultTypingFloor = 600 * time.Millisecond

// TypingFloorOptions tune the typing stage.
type TypingFloorOptions struct {
	// Floor overrides DefaultTypingFloor. Zero means the default.
	Floor time.Duration
}

// TypingFloor passes the typing indicator through immediately but holds the
// event that would supersede it until the indicator has been visible for the
// floor duration. A flash of a typing bubble shorter than the floor reads as
// flicker, not feedback.
func TypingFloor(opts TypingFloorOptions) Stage {
	floor := opts.Floor
	if floor <= 0 {
		floor = DefaultTypingFloor
	}

	return func(ctx context.Context, in <-chan stream.Event) <-chan stream.Event {
		out := make(chan stream.Event)
		go func() {
			defer close(out)
			var visibleUntil time.Time
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-in:
					if !ok {
						return
					}
					if ev.MessageType() == stream.MessageTypeTyping {
						if !emit(ctx, out, ev) {
							return
						}
						visibleUntil = time.Now().Add(floor)
						continue
					}
					if wait := time.Until(visibleUntil); wait > 0 {
						timer := time.NewTimer(wait)
						select {
						case <-timer.C:
						case <-ctx.Done():
							timer.Stop()
							return
						}
					}
					visibleUntil = time.Time{}
					if !emit(ctx, out, ev) {
						return
					}
				}
			}
		}()
		return out
	}
}
