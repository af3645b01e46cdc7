// Package botflow is the high-level entry point for the conversational
// automation engine. It wires the flow runtime, tool executor, stores and
// HTTP surface behind one constructor with functional options; by default
// everything runs in memory, production deployments swap in the Redis
// adapters.
package botflow

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	httpadapter "github.com/stackmint/botflow/internal/adapters/http"
	"github.com/stackmint/botflow/internal/logging"
	"github.com/stackmint/botflow/internal/metrics"
	"github.com/stackmint/botflow/internal/runtime"
	"github.com/stackmint/botflow/pkg/adapters/memory"
	"github.com/stackmint/botflow/pkg/ports"
	"github.com/stackmint/botflow/pkg/session"
	"github.com/stackmint/botflow/pkg/stream"
	"github.com/stackmint/botflow/pkg/toolexec"
)

// Version is the release version of botflow.
const Version = "0.1.0"

// Engine bundles a fully wired conversation engine.
type Engine struct {
	flows    ports.FlowStore
	tools    ports.ToolStore
	sessions ports.SessionStore
	cache    ports.ToolResponseCache
	attrs    ports.AttributeStore
	convs    ports.ConversationStore
	locker   ports.ConversationLocker

	logger       *slog.Logger
	registry     *prometheus.Registry
	metrics      *metrics.Metrics
	executorOpts []toolexec.Option

	runtime *runtime.Engine
	guard   *session.Guard
}

// Option configures the Engine.
type Option func(*Engine)

// WithFlowStore injects the flow configuration source.
func WithFlowStore(store ports.FlowStore) Option {
	return func(e *Engine) { e.flows = store }
}

// WithToolStore injects the tool configuration source.
func WithToolStore(store ports.ToolStore) Option {
	return func(e *Engine) { e.tools = store }
}

// WithSessionStore injects durable session persistence.
func WithSessionStore(store ports.SessionStore) Option {
	return func(e *Engine) { e.sessions = store }
}

// WithToolResponseCache injects the tool response cache.
func WithToolResponseCache(cache ports.ToolResponseCache) Option {
	return func(e *Engine) { e.cache = cache }
}

// WithAttributeStore injects the conversation attribute collaborator.
func WithAttributeStore(store ports.AttributeStore) Option {
	return func(e *Engine) { e.attrs = store }
}

// WithConversationStore injects the message persistence collaborator.
func WithConversationStore(store ports.ConversationStore) Option {
	return func(e *Engine) { e.convs = store }
}

// WithLocker enables cross-replica conversation locking.
func WithLocker(locker ports.ConversationLocker) Option {
	return func(e *Engine) { e.locker = locker }
}

// WithLogger sets the structured logger shared by all components.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithRegistry sets the prometheus registry the collectors register on.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(e *Engine) { e.registry = registry }
}

// WithCacheTTL overrides the tool response cache validity window.
func WithCacheTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		e.executorOpts = append(e.executorOpts, toolexec.WithTTL(ttl))
	}
}

// WithHTTPClient overrides the client used for tool dispatch.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Engine) {
		e.executorOpts = append(e.executorOpts, toolexec.WithHTTPClient(client))
	}
}

// New wires an Engine. Components not injected through options default to
// their in-memory implementations.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:   logging.NewNop(),
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.flows == nil {
		store := memory.NewFlowStore()
		e.flows = store
		if e.tools == nil {
			e.tools = store.Tools()
		}
	}
	if e.tools == nil {
		e.tools = memory.NewFlowStore().Tools()
	}
	if e.sessions == nil {
		e.sessions = memory.NewSessionStore()
	}
	if e.cache == nil {
		e.cache = memory.NewToolResponseCache()
	}
	if e.attrs == nil {
		e.attrs = memory.NewAttributeStore()
	}
	if e.convs == nil {
		e.convs = memory.NewConversationStore()
	}

	e.metrics = metrics.New(e.registry)

	executorOpts := append([]toolexec.Option{
		toolexec.WithLogger(e.logger),
		toolexec.WithMetrics(e.metrics),
	}, e.executorOpts...)
	executor := toolexec.NewExecutor(e.tools, e.cache, executorOpts...)

	e.runtime = runtime.NewEngine(
		e.flows, e.sessions, e.tools, executor, e.attrs, e.convs,
		runtime.WithLogger(e.logger),
		runtime.WithMetrics(e.metrics),
	)

	guardOpts := []session.Option{session.WithLogger(e.logger)}
	if e.locker != nil {
		guardOpts = append(guardOpts, session.WithLocker(e.locker))
	}
	e.guard = session.NewGuard(guardOpts...)

	return e, nil
}

// HandleMessage runs one conversation turn, serialized per conversation.
func (e *Engine) HandleMessage(ctx context.Context, conversationID, userID, text string, em *stream.Emitter) error {
	return e.guard.WithLock(ctx, conversationID, func(ctx context.Context) error {
		return e.runtime.HandleMessage(ctx, conversationID, userID, text, em)
	})
}

// Handler returns the HTTP surface: chat ingress with SSE egress, health and
// metrics endpoints.
func (e *Engine) Handler() http.Handler {
	return httpadapter.NewHandler(e.runtime,
		httpadapter.WithLogger(e.logger),
		httpadapter.WithMetrics(e.metrics, e.registry),
		httpadapter.WithGuard(e.guard),
	)
}

// Registry exposes the prometheus registry for callers that mount metrics
// themselves.
func (e *Engine) Registry() *prometheus.Registry {
	return e.registry
}
