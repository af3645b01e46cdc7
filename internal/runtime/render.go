package runtime

import (
	"bytes"
	"context"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/stackmint/botflow/pkg/domain"
	"github.com/stackmint/botflow/pkg/stream"
	"github.com/stackmint/botflow/pkg/template"
)

var (
	markdown  = goldmark.New(goldmark.WithExtensions(extension.GFM))
	sanitizer = bluemonday.UGCPolicy()
)

// renderHTML converts authored markdown to sanitized HTML. Render failures
// fall back to the raw text.
func renderHTML(content string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(content), &buf); err != nil {
		return content
	}
	return sanitizer.Sanitize(buf.String())
}

// splitDeltas chunks outbound content into word-sized fragments, each
// carrying its trailing whitespace, so the stream shows text arriving the way
// a human types it.
func splitDeltas(content string) []string {
	var out []string
	var b strings.Builder
	inSpace := false
	for _, r := range content {
		isSpace := r == ' ' || r == '\t' || r == '\n'
		if inSpace && !isSpace && b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
		b.WriteRune(r)
		inSpace = isSpace
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}

// emitMessage streams one outbound message: typing indicator, delta
// fragments, the rendered snapshot, then the persisted-message announcement.
func (e *Engine) emitMessage(ctx context.Context, sess *domain.Session, payload domain.MessagePayload, input string, em *stream.Emitter) error {
	content := template.Replace(payload.Content, e.replacerData(ctx, sess, input))

	em.Typing()
	for _, fragment := range splitDeltas(content) {
		em.Delta(fragment)
	}
	em.Emit(stream.EndDeltaStream())

	html := renderHTML(content)
	em.Emit(stream.FormattedHTML(html))

	msg := domain.Message{
		ConversationID: sess.ConversationID,
		Sender:         "agent",
		Content:        content,
		ContentHTML:    html,
		Attachments:    payload.Attachments,
		Buttons:        payload.Buttons,
		Cards:          payload.Cards,
	}
	created, err := e.convs.CreateMessage(ctx, msg)
	if err != nil {
		// The customer already saw the text; losing the archive row is a
		// warning, not a turn failure.
		e.logger.Warn("failed to persist outbound message", "conversation_id", sess.ConversationID, "err", err)
		return nil
	}
	em.Emit(stream.MessageCreated(created))
	return nil
}
