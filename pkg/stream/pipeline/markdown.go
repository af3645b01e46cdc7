package pipeline

import (
	"bytes"
	"context"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/stackmint/botflow/pkg/stream"
)

// RepairMarkdown closes the constructs a partially streamed document leaves
// dangling, so the buffer renders to syntactically valid HTML at every step.
// Best effort: the repaired suffix disappears once the real closing marker
// arrives in a later delta.
func RepairMarkdown(md string) string {
	// An odd number of fences means we are inside a code block; inline
	// constructs in there are literal, so closing the fence is the only
	// repair that applies.
	fences := strings.Count(md, "```")
	if fences%2 == 1 {
		return md + "\n```"
	}

	// Unterminated inline code span.
	if (strings.Count(md, "`")-3*fences)%2 == 1 {
		md += "`"
	}

	// Incomplete link: "[text" gets its bracket, "[text](url" its paren.
	if open := strings.LastIndex(md, "["); open > strings.LastIndex(md, "]") {
		md += "]"
	}
	if anchor := strings.LastIndex(md, "]("); anchor >= 0 && !strings.Contains(md[anchor:], ")") {
		md += ")"
	}

	// Unterminated bold, then whatever single asterisks remain.
	if strings.Count(md, "**")%2 == 1 {
		md += "**"
	}
	if strings.Count(md, "*")%2 == 1 {
		md += "*"
	}
	if strings.Count(md, "_")%2 == 1 {
		md += "_"
	}

	return md
}

// MarkdownRender accumulates delta fragments into a running buffer and, on
// every delta, emits a cumulative render snapshot of the repaired buffer as
// sanitized HTML. Raw delta events are consumed; everything else passes
// through.
func MarkdownRender() Stage {
	return func(ctx context.Context, in <-chan stream.Event) <-chan stream.Event {
		out := make(chan stream.Event)
		go func() {
			defer close(out)

			md := goldmark.New(goldmark.WithExtensions(extension.GFM))
			policy := bluemonday.UGCPolicy()
			var buf strings.Builder

			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-in:
					if !ok {
						return
					}
					token, isDelta := ev.DeltaText()
					if !isDelta {
						if !emit(ctx, out, ev) {
							return
						}
						continue
					}

					buf.WriteString(token)
					text := buf.String()

					var rendered bytes.Buffer
					html := ""
					if err := md.Convert([]byte(RepairMarkdown(text)), &rendered); err == nil {
						html = policy.Sanitize(rendered.String())
					}
					if !emit(ctx, out, Rendered(token, text, html)) {
						return
					}
				}
			}
		}()
		return out
	}
}
