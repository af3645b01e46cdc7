package toolexec_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackmint/botflow/pkg/adapters/memory"
	"github.com/stackmint/botflow/pkg/domain"
	"github.com/stackmint/botflow/pkg/template"
	"github.com/stackmint/botflow/pkg/toolexec"
)

type fixture struct {
	store    *memory.FlowStore
	cache    *memory.ToolResponseCache
	executor *toolexec.Executor
	calls    *atomic.Int64
	now      *time.Time
}

func newFixture(t *testing.T, handler http.HandlerFunc) (*fixture, *httptest.Server) {
	t.Helper()
	calls := &atomic.Int64{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	now := time.Now()
	f := &fixture{
		store: memory.NewFlowStore(),
		cache: memory.NewToolResponseCache(),
		calls: calls,
		now:   &now,
	}
	f.executor = toolexec.NewExecutor(f.store.Tools(), f.cache,
		toolexec.WithClock(func() time.Time { return *f.now }),
	)
	return f, server
}

func orderTool(url string) *domain.Tool {
	return &domain.Tool{
		ID:     "tool-1",
		Name:   "order_status",
		Active: true,
		Request: domain.RequestTemplate{
			Method: "GET",
			URL:    url + "/orders/{{order_id}}",
			Headers: []domain.Header{
				{Key: "Authorization", Value: "Bearer {{token|text|anon}}"},
			},
		},
	}
}

func TestExecute_CachesWithinTTL(t *testing.T) {
	f, server := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"shipped"}`)
	})
	tool := orderTool(server.URL)
	f.store.PutTool(tool)
	data := template.Data{Collected: map[string]string{"order_id": "123"}}

	first, err := f.executor.Execute(context.Background(), tool, data, true)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, `{"status":"shipped"}`, first.Body)

	second, err := f.executor.Execute(context.Background(), tool, data, true)
	require.NoError(t, err)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, first.RequestKey, second.RequestKey)

	assert.EqualValues(t, 1, f.calls.Load(), "identical request within TTL must not hit the network")

	// The activation counter increments on every attempt, cached or not.
	stored, err := f.store.GetTool(context.Background(), "tool-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, stored.Activations)
}

func TestExecute_StaleRowIsIgnoredAtReadTime(t *testing.T) {
	f, server := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"shipped"}`)
	})
	tool := orderTool(server.URL)
	f.store.PutTool(tool)
	data := template.Data{Collected: map[string]string{"order_id": "123"}}

	_, err := f.executor.Execute(context.Background(), tool, data, true)
	require.NoError(t, err)

	*f.now = f.now.Add(toolexec.DefaultTTL + time.Second)

	_, err = f.executor.Execute(context.Background(), tool, data, true)
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.calls.Load(), "stale cache row must be ignored, not served")
}

func TestExecute_HeaderChangeMissesCache(t *testing.T) {
	f, server := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"ok":true}`)
	})
	tool := orderTool(server.URL)
	f.store.PutTool(tool)

	base := template.Data{Collected: map[string]string{"order_id": "123", "token": "aaa"}}
	first, err := f.executor.Execute(context.Background(), tool, base, true)
	require.NoError(t, err)

	changed := template.Data{Collected: map[string]string{"order_id": "123", "token": "bbb"}}
	second, err := f.executor.Execute(context.Background(), tool, changed, true)
	require.NoError(t, err)

	assert.NotEqual(t, first.RequestKey, second.RequestKey)
	assert.EqualValues(t, 2, f.calls.Load())
}

func TestExecute_TemplatesRequestFields(t *testing.T) {
	var gotPath, gotAuth string
	f, server := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		io.WriteString(w, `{"ok":true}`)
	})
	tool := orderTool(server.URL)
	f.store.PutTool(tool)

	_, err := f.executor.Execute(context.Background(), tool, template.Data{
		Collected:  map[string]string{"order_id": "42"},
		Attributes: map[string]string{"token": "attr-token"},
	}, true)
	require.NoError(t, err)

	assert.Equal(t, "/orders/42", gotPath)
	assert.Equal(t, "Bearer attr-token", gotAuth)
}

func TestExecute_UnresolvedVariableFallsBack(t *testing.T) {
	var gotAuth string
	f, server := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		io.WriteString(w, `{"ok":true}`)
	})
	tool := orderTool(server.URL)
	f.store.PutTool(tool)

	_, err := f.executor.Execute(context.Background(), tool, template.Data{
		Collected: map[string]string{"order_id": "42"},
	}, true)
	require.NoError(t, err)
	assert.Equal(t, "Bearer anon", gotAuth)
}

func TestExecute_SoftFailureReturnsNil(t *testing.T) {
	f, server := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	tool := orderTool(server.URL)
	f.store.PutTool(tool)

	row, err := f.executor.Execute(context.Background(), tool, template.Data{}, false)
	assert.NoError(t, err)
	assert.Nil(t, row)
}

func TestExecute_ThrowOnFailureCarriesStatus(t *testing.T) {
	f, server := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	tool := orderTool(server.URL)
	f.store.PutTool(tool)

	_, err := f.executor.Execute(context.Background(), tool, template.Data{}, true)
	require.Error(t, err)

	var callErr *toolexec.CallError
	require.True(t, errors.As(err, &callErr))
	assert.Equal(t, http.StatusNotFound, callErr.StatusCode)
}

func TestExecute_EmptyBodyIsFailure(t *testing.T) {
	f, server := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	tool := orderTool(server.URL)
	f.store.PutTool(tool)

	row, err := f.executor.Execute(context.Background(), tool, template.Data{}, false)
	assert.NoError(t, err)
	assert.Nil(t, row)
}

func TestExecute_InactiveTool(t *testing.T) {
	f, server := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"ok":true}`)
	})
	tool := orderTool(server.URL)
	tool.Active = false
	f.store.PutTool(tool)

	_, err := f.executor.Execute(context.Background(), tool, template.Data{}, true)
	assert.ErrorIs(t, err, domain.ErrToolInactive)
	assert.EqualValues(t, 0, f.calls.Load())

	// The attempt still counted.
	stored, err := f.store.GetTool(context.Background(), "tool-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, stored.Activations)
}

// wrappingCache decorates every error with backend context, the way a real
// adapter does.
type wrappingCache struct {
	*memory.ToolResponseCache
}

func (c *wrappingCache) Get(ctx context.Context, requestKey, responseType string) (*domain.ToolResponse, error) {
	row, err := c.ToolResponseCache.Get(ctx, requestKey, responseType)
	if err != nil {
		return nil, fmt.Errorf("cache backend: %w", err)
	}
	return row, nil
}

func TestExecute_WrappedCacheMissStaysAMiss(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"ok":true}`)
	}))
	t.Cleanup(server.Close)

	store := memory.NewFlowStore()
	tool := orderTool(server.URL)
	store.PutTool(tool)

	var logs bytes.Buffer
	executor := toolexec.NewExecutor(store.Tools(), &wrappingCache{memory.NewToolResponseCache()},
		toolexec.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
	)

	row, err := executor.Execute(context.Background(), tool, template.Data{
		Collected: map[string]string{"order_id": "123"},
	}, true)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, row.Body)
	assert.NotContains(t, logs.String(), "cache read failed",
		"a wrapped miss is still a miss, not a cache failure")
}

func TestRequestKey_Canonicalization(t *testing.T) {
	base := toolexec.RequestKey("GET", "https://x/y", map[string]string{"A": "1", "B": "2"}, "")

	// Header order is irrelevant; map canonicalization sorts keys.
	same := toolexec.RequestKey("GET", "https://x/y", map[string]string{"B": "2", "A": "1"}, "")
	assert.Equal(t, base, same)

	// Any single changed component produces a distinct key.
	assert.NotEqual(t, base, toolexec.RequestKey("POST", "https://x/y", map[string]string{"A": "1", "B": "2"}, ""))
	assert.NotEqual(t, base, toolexec.RequestKey("GET", "https://x/z", map[string]string{"A": "1", "B": "2"}, ""))
	assert.NotEqual(t, base, toolexec.RequestKey("GET", "https://x/y", map[string]string{"A": "1", "B": "3"}, ""))
	assert.NotEqual(t, base, toolexec.RequestKey("GET", "https://x/y", map[string]string{"A": "1", "B": "2"}, "body"))
}

func TestFlattenHeaders(t *testing.T) {
	flat := toolexec.FlattenHeaders([]domain.Header{
		{Key: "A", Value: "1"},
		{Key: "A", Value: "2"},
		{Key: "", Value: "dropped"},
		{Key: "B", Value: "3"},
	})
	assert.Equal(t, map[string]string{"A": "2", "B": "3"}, flat)
}

func TestErrorBody(t *testing.T) {
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(toolexec.ErrorBody(502, "upstream unavailable")), &payload))
	assert.Equal(t, "error", payload["status"])
	assert.EqualValues(t, 502, payload["code"])
	assert.Equal(t, "upstream unavailable", payload["error"])
}
