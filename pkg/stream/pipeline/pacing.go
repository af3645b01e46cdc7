package pipeline

import (
	"context"
	"time"

	"github.com/stackmint/botflow/pkg/stream"
)

// Pacing defaults.
const (
	// DefaultPacingWindow is how many inter-arrival gaps feed the average.
	DefaultPacingWindow = 30
	// DefaultAnomalyThreshold excludes gaps above it from the average: a
	// tool-call stall is not a typing rhythm.
	DefaultAnomalyThreshold = 2000 * time.Millisecond
	// DefaultMaxCadence bounds the emission cadence.
	DefaultMaxCadence = 200 * time.Millisecond
)

// PacingOptions tune the pacing stage.
type PacingOptions struct {
	Window           int
	AnomalyThreshold time.Duration
	MaxCadence       time.Duration
}

func (o PacingOptions) withDefaults() PacingOptions {
	if o.Window <= 0 {
		o.Window = DefaultPacingWindow
	}
	if o.AnomalyThreshold <= 0 {
		o.AnomalyThreshold = DefaultAnomalyThreshold
	}
	if o.MaxCadence <= 0 {
		o.MaxCadence = DefaultMaxCadence
	}
	return o
}

// gapWindow tracks recent inter-arrival gaps and derives a bounded emission
// cadence from their average, ignoring anomalous stalls.
type gapWindow struct {
	gaps    []time.Duration
	size    int
	anomaly time.Duration
	bound   time.Duration
}

func newGapWindow(opts PacingOptions) *gapWindow {
	return &gapWindow{
		gaps:    make([]time.Duration, 0, opts.Window),
		size:    opts.Window,
		anomaly: opts.AnomalyThreshold,
		bound:   opts.MaxCadence,
	}
}

func (w *gapWindow) observe(gap time.Duration) {
	w.gaps = append(w.gaps, gap)
	if len(w.gaps) > w.size {
		w.gaps = w.gaps[1:]
	}
}

// cadence returns the average of the kept gaps, excluding anomalies and
// bounded above. Zero when nothing informative has been observed.
func (w *gapWindow) cadence() time.Duration {
	var sum time.Duration
	var kept int
	for _, gap := range w.gaps {
		if gap > w.anomaly {
			continue
		}
		sum += gap
		kept++
	}
	if kept == 0 {
		return 0
	}
	avg := sum / time.Duration(kept)
	if avg > w.bound {
		return w.bound
	}
	return avg
}

// Pace releases buffered items at the adaptive cadence. The release timer is
// raced against "new item arrived", so the producer never waits behind a
// pacing sleep and every gap is observed as it happens; the wait is then
// recomputed over the grown queue. Once the input closes, the remaining
// queue drains at the cadence. Control events (anything that is not a
// delta or render snapshot) release immediately once they reach the head of
// the buffer.
func Pace(opts PacingOptions) Stage {
	opts = opts.withDefaults()

	return func(ctx context.Context, in <-chan stream.Event) <-chan stream.Event {
		out := make(chan stream.Event)
		go func() {
			defer close(out)

			window := newGapWindow(opts)
			var queue []stream.Event
			var lastArrival time.Time
			var lastEmit time.Time
			open := true

			receive := func(ev stream.Event) {
				now := time.Now()
				if !lastArrival.IsZero() {
					window.observe(now.Sub(lastArrival))
				}
				lastArrival = now
				queue = append(queue, ev)
			}

			release := func() bool {
				ev := queue[0]
				queue = queue[1:]
				lastEmit = time.Now()
				return emit(ctx, out, ev)
			}

			for open || len(queue) > 0 {
				if len(queue) == 0 {
					select {
					case <-ctx.Done():
						return
					case ev, ok := <-in:
						if !ok {
							open = false
							in = nil
							continue
						}
						receive(ev)
					}
					continue
				}

				if !paced(queue[0]) {
					if !release() {
						return
					}
					continue
				}

				wait := window.cadence() - time.Since(lastEmit)
				if wait <= 0 {
					if !release() {
						return
					}
					continue
				}

				timer := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
					if !release() {
						return
					}
				case ev, ok := <-in:
					timer.Stop()
					if !ok {
						// A nil channel never wins the race again, so the
						// queue keeps draining on the timer.
						open = false
						in = nil
						continue
					}
					receive(ev)
				}
			}
		}()
		return out
	}
}

func paced(ev stream.Event) bool {
	if _, ok := ev.DeltaText(); ok {
		return true
	}
	return ev.Name == EventRendered
}
