package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackmint/botflow/pkg/stream"
)

func TestRepairMarkdown(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"balanced untouched", "plain **bold** text", "plain **bold** text"},
		{"unterminated bold", "**bold", "**bold**"},
		{"unterminated italic", "some *ital", "some *ital*"},
		{"unterminated underscore", "some _ital", "some _ital_"},
		{"unterminated inline code", "use `fmt.Println", "use `fmt.Println`"},
		{"open fence", "```go\nfunc main() {", "```go\nfunc main() {\n```"},
		{"open bracket", "see [the docs", "see [the docs]"},
		{"open link target", "see [docs](https://x", "see [docs](https://x)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RepairMarkdown(tt.input))
		})
	}
}

func TestRepairMarkdown_EvenAsteriskCount(t *testing.T) {
	for _, input := range []string{"**bold", "*a", "***x", "a ** b * c"} {
		repaired := RepairMarkdown(input)
		assert.Zero(t, strings.Count(repaired, "*")%2, "input %q repaired to %q", input, repaired)
	}
}

func TestRepairMarkdown_InsideFenceLeavesInlineAlone(t *testing.T) {
	// A lone asterisk inside an open code block is literal code.
	got := RepairMarkdown("```\nx := a * b")
	assert.Equal(t, "```\nx := a * b\n```", got)
}

func TestMarkdownRender_CumulativeSnapshots(t *testing.T) {
	in := make(chan stream.Event, 8)
	out := MarkdownRender()(context.Background(), in)

	in <- stream.Delta("Hello ")
	in <- stream.Delta("**world")
	in <- stream.EndDeltaStream()
	close(in)

	var snapshots []RenderedPayload
	var rest []stream.Event
	for ev := range out {
		if p, ok := ev.Payload.(RenderedPayload); ok {
			snapshots = append(snapshots, p)
		} else {
			rest = append(rest, ev)
		}
	}

	require.Len(t, snapshots, 2)
	assert.Equal(t, "Hello ", snapshots[0].Text)
	assert.Contains(t, snapshots[0].HTML, "Hello")
	assert.Equal(t, "Hello **world", snapshots[1].Text)
	assert.Contains(t, snapshots[1].HTML, "<strong>world</strong>")

	require.Len(t, rest, 1)
	assert.Equal(t, stream.MessageTypeEndDeltaStream, rest[0].MessageType())
}

func TestMarkdownRender_SanitizesHTML(t *testing.T) {
	in := make(chan stream.Event, 2)
	out := MarkdownRender()(context.Background(), in)

	in <- stream.Delta(`<script>alert("x")</script> hi`)
	close(in)

	var html string
	for ev := range out {
		if p, ok := ev.Payload.(RenderedPayload); ok {
			html = p.HTML
		}
	}
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "hi")
}
