// Package http exposes the engine over HTTP: message ingress returns the
// turn's event stream as SSE, plus health and metrics endpoints.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stackmint/botflow/internal/logging"
	"github.com/stackmint/botflow/internal/metrics"
	"github.com/stackmint/botflow/pkg/session"
	"github.com/stackmint/botflow/pkg/stream"
)

// eventBuffer sizes the per-turn emitter channel. The writer drains
// continuously; the buffer only absorbs flush latency.
const eventBuffer = 64

// Engine is the conversation turn runner the server fronts.
type Engine interface {
	HandleMessage(ctx context.Context, conversationID, userID, text string, em *stream.Emitter) error
}

// Server handles chat ingress.
type Server struct {
	engine   Engine
	guard    *session.Guard
	logger   *slog.Logger
	metrics  *metrics.Metrics
	registry *prometheus.Registry
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics wires the stream event counters and exposes the registry on
// /metrics.
func WithMetrics(m *metrics.Metrics, registry *prometheus.Registry) Option {
	return func(s *Server) {
		s.metrics = m
		s.registry = registry
	}
}

// WithGuard overrides the turn guard (to share one with other ingresses, or
// to add distributed locking).
func WithGuard(guard *session.Guard) Option {
	return func(s *Server) { s.guard = guard }
}

// NewHandler builds the HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	s := &Server{
		engine:  engine,
		guard:   session.NewGuard(),
		logger:  logging.NewNop(),
		metrics: metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	if s.registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	r.Post("/conversations/{conversationID}/messages", s.postMessage)

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// messageRequest is the ingress body for one customer message.
type messageRequest struct {
	UserID  string `json:"user_id"`
	Content string `json:"content"`
}

// postMessage runs one conversation turn and streams its events back as SSE.
// The response stays open until the turn emits endStream; closing the request
// context cancels the turn.
func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	var body messageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Content == "" {
		http.Error(w, "content is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	em := stream.NewEmitter(ctx, eventBuffer, stream.WithMetrics(s.metrics))

	go func() {
		err := s.guard.WithLock(ctx, conversationID, func(ctx context.Context) error {
			return s.engine.HandleMessage(ctx, conversationID, body.UserID, body.Content, em)
		})
		if err != nil {
			s.logger.Error("turn failed", "conversation_id", conversationID, "err", err)
			em.End()
		}
	}()

	for ev := range em.Events() {
		if err := stream.Encode(w, ev); err != nil {
			s.logger.Debug("client disconnected mid-stream", "conversation_id", conversationID, "err", err)
			return
		}
		flusher.Flush()
	}
}
