package stream

import (
	"context"
	"sync"

	"github.com/stackmint/botflow/internal/metrics"
)

// Emitter is the server-side producer of one turn's event sequence, drained
// by one transport writer. Emit and End serialize on one lock, so concurrent
// producers never race a send against the channel close.
//
// End is idempotent: exactly one endStream reaches the channel no matter how
// many code paths try to terminate the turn, and events emitted after End
// are dropped.
type Emitter struct {
	ctx     context.Context
	ch      chan Event
	metrics *metrics.Metrics

	mu    sync.Mutex
	ended bool
}

// EmitterOption configures the Emitter.
type EmitterOption func(*Emitter)

// WithMetrics wires the stream event counters.
func WithMetrics(m *metrics.Metrics) EmitterOption {
	return func(e *Emitter) { e.metrics = m }
}

// NewEmitter creates an emitter whose sends abort when ctx is done.
func NewEmitter(ctx context.Context, buffer int, opts ...EmitterOption) *Emitter {
	e := &Emitter{
		ctx:     ctx,
		ch:      make(chan Event, buffer),
		metrics: metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Events returns the consumer side of the sequence. The channel closes after
// the endStream frame.
func (e *Emitter) Events() <-chan Event {
	return e.ch
}

// Emit pushes one event. Returns false if the turn already ended or the
// context is done.
func (e *Emitter) Emit(ev Event) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ended {
		return false
	}

	select {
	case e.ch <- ev:
		e.metrics.StreamEvents.WithLabelValues(string(ev.Name)).Inc()
		return true
	case <-e.ctx.Done():
		return false
	}
}

// Delta emits one text fragment.
func (e *Emitter) Delta(text string) bool { return e.Emit(Delta(text)) }

// Typing emits the typing indicator.
func (e *Emitter) Typing() bool { return e.Emit(Typing()) }

// End emits the authoritative endStream frame and closes the sequence.
// Safe to call multiple times; only the first has effect.
func (e *Emitter) End() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ended {
		return
	}
	e.ended = true

	select {
	case e.ch <- EndStream():
		e.metrics.StreamEvents.WithLabelValues(string(EventMessage)).Inc()
	case <-e.ctx.Done():
	}
	close(e.ch)
}
