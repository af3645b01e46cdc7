// Package pipeline implements the client-side rendering pipeline: an
// ordered chain of asynchronous stages, each transforming the prior stage's
// event output.
//
// The standard chain is typing floor, incremental markdown render, word
// boundary coalescing, then adaptive pacing. Pacing is outermost (applied
// last) so it smooths output already coalesced by the inner stages. Stages
// are goroutines linked by channels; cancelling the context tears down the
// whole chain, and an upstream close propagates downstream.
package pipeline

import (
	"context"

	"github.com/stackmint/botflow/pkg/stream"
)

// Stage transforms one event sequence into another. Implementations must
// close their output when the input closes or the context is done.
type Stage func(ctx context.Context, in <-chan stream.Event) <-chan stream.Event

// Compose chains stages in order: the first stage is innermost (closest to
// the transport), the last outermost.
func Compose(stages ...Stage) Stage {
	return func(ctx context.Context, in <-chan stream.Event) <-chan stream.Event {
		out := in
		for _, stage := range stages {
			out = stage(ctx, out)
		}
		return out
	}
}

// Options tune the standard pipeline.
type Options struct {
	Typing   TypingFloorOptions
	Coalesce CoalesceOptions
	Pacing   PacingOptions
}

// New builds the standard four-stage pipeline.
func New(opts Options) Stage {
	return Compose(
		TypingFloor(opts.Typing),
		MarkdownRender(),
		Coalesce(opts.Coalesce),
		Pace(opts.Pacing),
	)
}

// EventRendered is the client-internal event kind produced by the markdown
// stage: one cumulative render snapshot per source delta. It never appears
// on the wire.
const EventRendered stream.EventName = "rendered"

// RenderedPayload carries a cumulative snapshot of the turn so far.
type RenderedPayload struct {
	// Token is the delta fragment (or coalesced fragments) that produced
	// this snapshot.
	Token string
	// Text is the accumulated raw markdown.
	Text string
	// HTML is the repaired, rendered, sanitized document.
	HTML string
}

// Rendered builds a render snapshot event.
func Rendered(token, text, html string) stream.Event {
	return stream.Event{Name: EventRendered, Payload: RenderedPayload{Token: token, Text: text, HTML: html}}
}

func emit(ctx context.Context, out chan<- stream.Event, ev stream.Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
