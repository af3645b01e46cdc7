package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackmint/botflow/pkg/stream"
)

func TestGapWindow_AverageExcludesAnomalies(t *testing.T) {
	w := newGapWindow(PacingOptions{}.withDefaults())

	w.observe(100 * time.Millisecond)
	w.observe(100 * time.Millisecond)
	// A tool-call stall must not stretch the cadence.
	w.observe(5 * time.Second)

	assert.Equal(t, 100*time.Millisecond, w.cadence())
}

func TestGapWindow_CadenceIsBounded(t *testing.T) {
	w := newGapWindow(PacingOptions{}.withDefaults())

	w.observe(1500 * time.Millisecond)
	w.observe(1500 * time.Millisecond)

	assert.Equal(t, DefaultMaxCadence, w.cadence())
}

func TestGapWindow_SlidesOverWindow(t *testing.T) {
	w := newGapWindow(PacingOptions{Window: 3}.withDefaults())

	w.observe(90 * time.Millisecond)
	w.observe(10 * time.Millisecond)
	w.observe(10 * time.Millisecond)
	w.observe(10 * time.Millisecond) // evicts the 90ms gap

	assert.Equal(t, 10*time.Millisecond, w.cadence())
}

func TestGapWindow_EmptyMeansNoDelay(t *testing.T) {
	w := newGapWindow(PacingOptions{}.withDefaults())
	assert.Zero(t, w.cadence())

	w.observe(3 * time.Second) // only anomalies observed
	assert.Zero(t, w.cadence())
}

func TestPace_PreservesOrderAndDeliversAll(t *testing.T) {
	in := make(chan stream.Event, 16)
	out := Pace(PacingOptions{MaxCadence: time.Millisecond})(context.Background(), in)

	in <- stream.Typing()
	for _, token := range []string{"a", "b", "c"} {
		in <- stream.Delta(token)
	}
	in <- stream.EndStream()
	close(in)

	var got []string
	for ev := range out {
		if text, ok := ev.DeltaText(); ok {
			got = append(got, text)
			continue
		}
		got = append(got, ev.MessageType())
	}
	assert.Equal(t, []string{stream.MessageTypeTyping, "a", "b", "c", stream.MessageTypeEndStream}, got)
}

func TestPace_DrainsAtCadenceAfterClose(t *testing.T) {
	in := make(chan stream.Event, 16)
	out := Pace(PacingOptions{MaxCadence: 60 * time.Millisecond})(context.Background(), in)

	// Establish a typing rhythm the stage can learn a cadence from.
	in <- stream.Delta("w0")
	<-out
	for _, token := range []string{"w1", "w2"} {
		time.Sleep(40 * time.Millisecond)
		in <- stream.Delta(token)
		<-out
	}

	// A burst still buffered when the stream closes must come out at the
	// learned cadence, not all at once.
	for _, token := range []string{"b0", "b1", "b2", "b3"} {
		in <- stream.Delta(token)
	}
	close(in)

	start := time.Now()
	var got []string
	for ev := range out {
		text, ok := ev.DeltaText()
		require.True(t, ok)
		got = append(got, text)
	}

	assert.Equal(t, []string{"b0", "b1", "b2", "b3"}, got)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond,
		"buffered items must keep their pacing after the input closes")
}

func TestPace_CancellationTearsDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan stream.Event)
	out := Pace(PacingOptions{})(ctx, in)

	cancel()

	select {
	case _, ok := <-out:
		assert.False(t, ok, "output must close on cancellation")
	case <-time.After(time.Second):
		t.Fatal("pacing stage did not shut down")
	}
}

func TestTypingFloor_HoldsSupersedingEvent(t *testing.T) {
	const floor = 50 * time.Millisecond

	in := make(chan stream.Event, 4)
	out := TypingFloor(TypingFloorOptions{Floor: floor})(context.Background(), in)

	in <- stream.Typing()
	in <- stream.Delta("hi")
	close(in)

	var shownAt time.Time
	var supersededAt time.Time
	for ev := range out {
		if ev.MessageType() == stream.MessageTypeTyping {
			shownAt = time.Now()
			continue
		}
		supersededAt = time.Now()
	}

	require.False(t, shownAt.IsZero())
	require.False(t, supersededAt.IsZero())
	assert.GreaterOrEqual(t, supersededAt.Sub(shownAt), floor-5*time.Millisecond,
		"typing indicator must stay visible for the floor duration")
}

func TestTypingFloor_NoDelayWithoutTyping(t *testing.T) {
	in := make(chan stream.Event, 4)
	out := TypingFloor(TypingFloorOptions{Floor: time.Second})(context.Background(), in)

	start := time.Now()
	in <- stream.Delta("hi")
	close(in)

	for range out {
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestPipeline_EndToEnd(t *testing.T) {
	stage := New(Options{
		Typing:   TypingFloorOptions{Floor: time.Millisecond},
		Pacing:   PacingOptions{MaxCadence: time.Millisecond},
		Coalesce: CoalesceOptions{},
	})

	in := make(chan stream.Event, 16)
	out := stage(context.Background(), in)

	in <- stream.Typing()
	for _, token := range []string{"Hel", "lo ", "**world"} {
		in <- stream.Delta(token)
	}
	in <- stream.EndDeltaStream()
	in <- stream.EndStream()
	close(in)

	var snapshots []RenderedPayload
	sawEnd := false
	for ev := range out {
		if p, ok := ev.Payload.(RenderedPayload); ok {
			snapshots = append(snapshots, p)
		}
		if ev.IsEnd() {
			sawEnd = true
		}
	}

	require.NotEmpty(t, snapshots)
	last := snapshots[len(snapshots)-1]
	assert.Equal(t, "Hello **world", last.Text)
	assert.Contains(t, last.HTML, "<strong>world</strong>")
	assert.True(t, sawEnd)

	// No intermediate snapshot showed a split "Hello".
	for _, snap := range snapshots {
		assert.NotEqual(t, "Hel", snap.Text)
	}
}
