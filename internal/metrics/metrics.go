// Package metrics defines the engine's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the engine collectors. All fields are safe for concurrent
// use.
type Metrics struct {
	ToolActivations *prometheus.CounterVec
	ToolCalls       *prometheus.CounterVec
	ToolCacheHits   prometheus.Counter
	SessionsStarted prometheus.Counter
	SessionsEnded   prometheus.Counter
	StreamEvents    *prometheus.CounterVec
	TurnDuration    prometheus.Histogram
}

// New registers the engine collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ToolActivations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "botflow_tool_activations_total",
			Help: "Tool invocation attempts, regardless of outcome.",
		}, []string{"tool"}),
		ToolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "botflow_tool_calls_total",
			Help: "Dispatched tool HTTP calls by result.",
		}, []string{"status"}),
		ToolCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "botflow_tool_cache_hits_total",
			Help: "Tool invocations served from the response cache.",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "botflow_sessions_started_total",
			Help: "Sessions started by intent match.",
		}),
		SessionsEnded: factory.NewCounter(prometheus.CounterOpts{
			Name: "botflow_sessions_ended_total",
			Help: "Sessions that reached the ended state.",
		}),
		StreamEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "botflow_stream_events_total",
			Help: "Events emitted on conversation streams.",
		}, []string{"event"}),
		TurnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "botflow_turn_duration_seconds",
			Help:    "Wall time of one conversation turn.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// NewNop returns collectors bound to a throwaway registry, for components
// constructed without metrics wiring.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
