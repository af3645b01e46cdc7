package pipeline

import (
	"context"
	"unicode"
	"unicode/utf8"

	"github.com/stackmint/botflow/pkg/stream"
)

// DefaultCoalesceCap is the maximum number of tokens combined before a
// forced flush.
const DefaultCoalesceCap = 5

// CoalesceOptions tune the coalescing stage.
type CoalesceOptions struct {
	// Cap overrides DefaultCoalesceCap. Zero means the default.
	Cap int
}

// Coalesce defers emitting a token boundary while the previous token ends
// alphanumeric and the next begins alphanumeric, so a word is never shown
// split across two visible fragments. Withheld render snapshots are
// superseded by the newer one (each snapshot is cumulative); withheld deltas
// are concatenated. Any non-token event flushes the held item first.
func Coalesce(opts CoalesceOptions) Stage {
	limit := opts.Cap
	if limit <= 0 {
		limit = DefaultCoalesceCap
	}

	return func(ctx context.Context, in <-chan stream.Event) <-chan stream.Event {
		out := make(chan stream.Event)
		go func() {
			defer close(out)

			var held stream.Event
			heldToken := ""
			combined := 0
			holding := false

			flush := func() bool {
				if !holding {
					return true
				}
				holding = false
				combined = 0
				return emit(ctx, out, held)
			}

			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-in:
					if !ok {
						flush()
						return
					}

					token, isToken := tokenOf(ev)
					if !isToken {
						if !flush() || !emit(ctx, out, ev) {
							return
						}
						continue
					}

					if holding && combined < limit && joinsWord(heldToken, token) {
						held = merge(held, ev)
						heldToken += token
						combined++
						continue
					}
					if !flush() {
						return
					}
					held = ev
					heldToken = token
					combined = 1
					holding = true
				}
			}
		}()
		return out
	}
}

func tokenOf(ev stream.Event) (string, bool) {
	if token, ok := ev.DeltaText(); ok {
		return token, true
	}
	if p, ok := ev.Payload.(RenderedPayload); ok {
		return p.Token, true
	}
	return "", false
}

// merge combines a held token event with its successor. Render snapshots are
// cumulative, so the newer snapshot wins and only the token accumulates;
// plain deltas concatenate.
func merge(held, next stream.Event) stream.Event {
	heldRendered, ok1 := held.Payload.(RenderedPayload)
	nextRendered, ok2 := next.Payload.(RenderedPayload)
	if ok1 && ok2 {
		nextRendered.Token = heldRendered.Token + nextRendered.Token
		return stream.Event{Name: EventRendered, Payload: nextRendered}
	}
	heldText, _ := held.DeltaText()
	nextText, _ := next.DeltaText()
	return stream.Delta(heldText + nextText)
}

// joinsWord reports whether emitting a boundary between the two tokens would
// split a word.
func joinsWord(prev, next string) bool {
	return endsAlnum(prev) && startsAlnum(next)
}

func endsAlnum(s string) bool {
	r, size := utf8.DecodeLastRuneInString(s)
	if size == 0 {
		return false
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func startsAlnum(s string) bool {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return false
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
