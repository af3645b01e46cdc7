package stream

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackmint/botflow/pkg/domain"
)

func TestEncode_Frames(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{"delta", Delta("Hel"), "event: delta\ndata: {\"delta\":\"Hel\"}\n\n"},
		{"typing", Typing(), "event: message\ndata: {\"type\":\"typing\"}\n\n"},
		{"end", EndStream(), "event: message\ndata: {\"type\":\"endStream\",\"value\":\"[END]\"}\n\n"},
		{"end delta", EndDeltaStream(), "event: message\ndata: {\"type\":\"endDeltaStream\",\"value\":\"[END_DELTA]\"}\n\n"},
		{"debug", Debug("trace", "x"), "event: debug\ndata: {\"type\":\"trace\",\"data\":\"x\"}\n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, tt.event))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	events := []Event{
		Typing(),
		Delta("Hello"),
		Delta(" world"),
		EndDeltaStream(),
		FormattedHTML("<p>Hello world</p>"),
		MessageCreated(domain.Message{ID: "msg-1", Content: "Hello world"}),
		ConversationCreated(map[string]any{"id": "conv-1"}),
		Debug("timing", nil),
		EndStream(),
	}

	var buf bytes.Buffer
	for _, ev := range events {
		require.NoError(t, Encode(&buf, ev))
	}

	dec := NewDecoder(&buf)
	for i, want := range events {
		got, err := dec.Next()
		require.NoError(t, err, "frame %d", i)
		assert.Equal(t, want.Name, got.Name, "frame %d", i)
		assert.Equal(t, want.MessageType(), got.MessageType(), "frame %d", i)
	}

	created := events[5]
	var buf2 bytes.Buffer
	require.NoError(t, Encode(&buf2, created))
	got, err := NewDecoder(&buf2).Next()
	require.NoError(t, err)
	payload, ok := got.Payload.(MessagePayload)
	require.True(t, ok)
	require.NotNil(t, payload.Message)
	assert.Equal(t, "msg-1", payload.Message.ID)
}

func TestDecoder_LargeFormattedHTMLFrame(t *testing.T) {
	html := "<p>" + strings.Repeat("x", 128*1024) + "</p>"

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, FormattedHTML(html)))

	got, err := NewDecoder(&buf).Next()
	require.NoError(t, err, "a rendered snapshot larger than 64KB must still decode")
	payload, ok := got.Payload.(MessagePayload)
	require.True(t, ok)
	assert.Equal(t, MessageTypeFormattedHTML, payload.Type)
	assert.Equal(t, html, payload.Content)
}

func TestEmitter_ExactlyOneEndStream(t *testing.T) {
	em := NewEmitter(context.Background(), 16)
	em.Typing()
	em.Delta("hi")
	em.End()
	em.End() // second End is a no-op
	assert.False(t, em.Delta("late"), "emit after End must be dropped")

	var ends int
	for ev := range em.Events() {
		if ev.IsEnd() {
			ends++
		}
	}
	assert.Equal(t, 1, ends)
}

func TestEmitter_ConcurrentEmitAndEnd(t *testing.T) {
	em := NewEmitter(context.Background(), 4)

	drained := make(chan []Event)
	go func() {
		var events []Event
		for ev := range em.Events() {
			events = append(events, ev)
		}
		drained <- events
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				em.Delta("x")
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		em.End()
	}()
	wg.Wait()

	events := <-drained
	require.NotEmpty(t, events)
	assert.True(t, events[len(events)-1].IsEnd())

	ends := 0
	for _, ev := range events {
		if ev.IsEnd() {
			ends++
		}
	}
	assert.Equal(t, 1, ends)
}

func TestEmitter_ContextCancelUnblocksProducer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	em := NewEmitter(ctx, 0) // unbuffered, nobody reading
	cancel()
	assert.False(t, em.Emit(Delta("x")))
}

func TestRead_SynthesizesTerminalOnTruncatedStream(t *testing.T) {
	// Transport dies after one delta, no endStream.
	raw := "event: delta\ndata: {\"delta\":\"Hel\"}\n\n"

	var got []Event
	for ev := range Read(context.Background(), strings.NewReader(raw)) {
		got = append(got, ev)
	}

	require.NotEmpty(t, got)
	assert.True(t, got[len(got)-1].IsEnd(), "client must synthesize a terminal state")

	foundFailure := false
	for _, ev := range got {
		if ev.Name == EventDebug {
			foundFailure = true
		}
	}
	assert.True(t, foundFailure)
}

func TestRead_StopsAtEndStream(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Delta("hi")))
	require.NoError(t, Encode(&buf, EndStream()))
	require.NoError(t, Encode(&buf, Delta("after the end"))) // must never surface

	var got []Event
	for ev := range Read(context.Background(), &buf) {
		got = append(got, ev)
	}

	require.Len(t, got, 2)
	assert.True(t, got[1].IsEnd())
}
