// Package toolexec builds, caches and dispatches templated external HTTP
// calls on behalf of flow tool nodes.
package toolexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stackmint/botflow/internal/logging"
	"github.com/stackmint/botflow/internal/metrics"
	"github.com/stackmint/botflow/pkg/domain"
	"github.com/stackmint/botflow/pkg/ports"
	"github.com/stackmint/botflow/pkg/template"
)

// DefaultTTL is the cache validity window for live tool responses.
const DefaultTTL = 10 * time.Minute

// CallError wraps a failed dispatch. StatusCode is 0 for network errors.
type CallError struct {
	StatusCode int
	Err        error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("tool call failed (status %d): %v", e.StatusCode, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// ErrorBody renders the structured error payload fed back into a live
// conversation in place of a raw failure.
func ErrorBody(code int, message string) string {
	body, _ := json.Marshal(map[string]any{
		"status": "error",
		"code":   code,
		"error":  message,
	})
	return string(body)
}

// Executor dispatches templated tool calls with response caching.
type Executor struct {
	tools   ports.ToolStore
	cache   ports.ToolResponseCache
	client  *http.Client
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures the Executor.
type Option func(*Executor)

// WithHTTPClient overrides the HTTP client used for dispatch.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Executor) { e.client = client }
}

// WithTTL overrides the cache validity window.
func WithTTL(ttl time.Duration) Option {
	return func(e *Executor) { e.ttl = ttl }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithMetrics wires the prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// NewExecutor creates an Executor bound to a tool store and response cache.
func NewExecutor(tools ports.ToolStore, cache ports.ToolResponseCache, opts ...Option) *Executor {
	e := &Executor{
		tools:   tools,
		cache:   cache,
		client:  &http.Client{Timeout: 30 * time.Second},
		ttl:     DefaultTTL,
		now:     time.Now,
		logger:  logging.NewNop(),
		metrics: metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TTL returns the configured cache validity window.
func (e *Executor) TTL() time.Duration { return e.ttl }

// Execute runs one tool invocation:
//
//  1. The tool's activation counter is incremented, regardless of outcome.
//  2. Variables are replaced in the URL, every header value and the body.
//  3. The canonicalized request is hashed into the cache key.
//  4. A fresh live cache row short-circuits the network call.
//  5. Otherwise the call is dispatched; a 2xx response with a non-empty body
//     is upserted under the key and returned.
//
// Failures return an error when throwOnFailure is set, else (nil, nil): the
// soft-failure contract flow call sites rely on.
func (e *Executor) Execute(ctx context.Context, tool *domain.Tool, data template.Data, throwOnFailure bool) (*domain.ToolResponse, error) {
	if err := e.tools.IncrementActivations(ctx, tool.ID); err != nil {
		e.logger.Warn("failed to increment tool activations", "tool_id", tool.ID, "err", err)
	}
	e.metrics.ToolActivations.WithLabelValues(tool.Name).Inc()

	if !tool.Active {
		return e.fail(throwOnFailure, &CallError{Err: fmt.Errorf("%w: %s", domain.ErrToolInactive, tool.ID)})
	}

	url := template.Replace(tool.Request.URL, data)
	headers := template.ReplaceAll(FlattenHeaders(tool.Request.Headers), data)
	body := template.Replace(tool.Request.Body, data)
	method := strings.ToUpper(tool.Request.Method)
	if method == "" {
		method = http.MethodGet
	}

	key := RequestKey(method, url, headers, body)

	if cached, err := e.cache.Get(ctx, key, domain.ToolResponseLive); err == nil {
		if cached.Fresh(e.now(), e.ttl) {
			e.metrics.ToolCacheHits.Inc()
			e.logger.Debug("tool response served from cache", "tool_id", tool.ID, "request_key", key)
			return cached, nil
		}
	} else if !errors.Is(err, domain.ErrCacheMiss) {
		// Cache trouble never blocks the call itself.
		e.logger.Warn("tool response cache read failed", "request_key", key, "err", err)
	}

	response, err := e.dispatch(ctx, tool, method, url, headers, body)
	if err != nil {
		e.metrics.ToolCalls.WithLabelValues("error").Inc()
		e.logger.Debug("tool call failed", "tool_id", tool.ID, "err", err)
		return e.fail(throwOnFailure, err)
	}
	e.metrics.ToolCalls.WithLabelValues("success").Inc()

	row := &domain.ToolResponse{
		RequestKey: key,
		Type:       domain.ToolResponseLive,
		ToolID:     tool.ID,
		Body:       response,
		CreatedAt:  e.now(),
	}
	if err := e.cache.Upsert(ctx, row); err != nil {
		e.logger.Warn("tool response cache write failed", "request_key", key, "err", err)
	}
	return row, nil
}

func (e *Executor) fail(throwOnFailure bool, err error) (*domain.ToolResponse, error) {
	if throwOnFailure {
		return nil, err
	}
	return nil, nil
}

// dispatch performs the HTTP call. Success means 2xx with a non-empty body.
func (e *Executor) dispatch(ctx context.Context, tool *domain.Tool, method, url string, headers map[string]string, body string) (string, error) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return "", &CallError{Err: fmt.Errorf("failed to build request: %w", err)}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != "" && req.Header.Get("Content-Type") == "" {
		contentType := tool.Request.BodyType
		if contentType == "" {
			contentType = domain.BodyTypeJSON
		}
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", &CallError{Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &CallError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &CallError{StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	if len(payload) == 0 {
		return "", &CallError{StatusCode: resp.StatusCode, Err: fmt.Errorf("empty response body")}
	}
	return string(payload), nil
}
