package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Encode writes one event as an SSE frame:
//
//	event: <name>\n
//	data: <json payload>\n\n
func Encode(w io.Writer, ev Event) error {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", ev.Name, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// Decoder reads SSE frames back into typed events.
type Decoder struct {
	scanner *bufio.Scanner
}

// maxFrameSize bounds a single SSE line. Rendered formattedHtml snapshots
// routinely exceed bufio's 64KB default token limit.
const maxFrameSize = 1 << 20

// NewDecoder wraps a transport reader.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	return &Decoder{scanner: scanner}
}

// Next returns the next event, or io.EOF when the transport closes.
func (d *Decoder) Next() (Event, error) {
	var name EventName
	for d.scanner.Scan() {
		line := d.scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			name = EventName(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			return decodePayload(name, []byte(strings.TrimPrefix(line, "data: ")))
		}
		// Blank separators and unknown fields are skipped.
	}
	if err := d.scanner.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}

func decodePayload(name EventName, data []byte) (Event, error) {
	switch name {
	case EventDelta:
		var p DeltaPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return Event{}, fmt.Errorf("failed to decode delta frame: %w", err)
		}
		return Event{Name: name, Payload: p}, nil
	case EventMessage:
		var p MessagePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return Event{}, fmt.Errorf("failed to decode message frame: %w", err)
		}
		return Event{Name: name, Payload: p}, nil
	case EventDebug:
		var p DebugPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return Event{}, fmt.Errorf("failed to decode debug frame: %w", err)
		}
		return Event{Name: name, Payload: p}, nil
	default:
		return Event{}, fmt.Errorf("unknown event name %q", name)
	}
}

// Read drains a transport into an event channel for the client pipeline.
//
// If the transport ends without an explicit endStream (reader closure,
// network abort), a terminal failure debug frame and a synthetic endStream
// are appended so downstream stages always observe an authoritative end.
// Cancelling ctx stops the read.
func Read(ctx context.Context, r io.Reader) <-chan Event {
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		dec := NewDecoder(r)
		sawEnd := false
		for {
			ev, err := dec.Next()
			if err != nil {
				if !sawEnd {
					send(ctx, out, Debug("transportError", err.Error()))
					send(ctx, out, EndStream())
				}
				return
			}
			if ev.IsEnd() {
				sawEnd = true
			}
			if !send(ctx, out, ev) {
				return
			}
			if sawEnd {
				return
			}
		}
	}()
	return out
}

func send(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
