package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackmint/botflow/pkg/domain"
)

// RunSessionStoreContract runs a suite of tests verifying that a
// SessionStore implementation adheres to the interface contract.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	convID := "contract-conv-" + time.Now().Format("20060102150405.000")

	t.Run("Load missing returns ErrSessionNotFound", func(t *testing.T) {
		_, err := store.Load(ctx, convID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Save and Load round-trip", func(t *testing.T) {
		session := domain.NewSession("user-1", convID, "flow-1", "node-1")
		session.Set("collected.order_id", "123")

		require.NoError(t, store.Save(ctx, session))

		loaded, err := store.Load(ctx, convID)
		require.NoError(t, err)
		assert.Equal(t, "flow-1", loaded.ActiveFlowID)
		assert.Equal(t, "node-1", loaded.ActiveNodeID)
		assert.Equal(t, domain.SessionActive, loaded.Status)

		got, ok := loaded.Get("collected.order_id")
		assert.True(t, ok)
		assert.Equal(t, "123", got)
	})

	t.Run("Save overwrites", func(t *testing.T) {
		session, err := store.Load(ctx, convID)
		require.NoError(t, err)

		session.End()
		require.NoError(t, store.Save(ctx, session))

		loaded, err := store.Load(ctx, convID)
		require.NoError(t, err)
		assert.Equal(t, domain.SessionEnded, loaded.Status)
		assert.Empty(t, loaded.ActiveNodeID)
	})

	t.Run("Loaded session is isolated from later mutation", func(t *testing.T) {
		loaded, err := store.Load(ctx, convID)
		require.NoError(t, err)
		loaded.Set("collected.scratch", "mutated")

		reloaded, err := store.Load(ctx, convID)
		require.NoError(t, err)
		_, ok := reloaded.Get("collected.scratch")
		assert.False(t, ok, "store must not leak caller mutations")
	})

	t.Run("Delete removes", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, convID))
		_, err := store.Load(ctx, convID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})
}

// RunToolResponseCacheContract runs a suite of tests verifying that a
// ToolResponseCache implementation adheres to the interface contract.
func RunToolResponseCacheContract(t *testing.T, cache ToolResponseCache) {
	ctx := context.Background()
	key := "contract-key-" + time.Now().Format("20060102150405.000")

	t.Run("Get missing returns ErrCacheMiss", func(t *testing.T) {
		_, err := cache.Get(ctx, key, domain.ToolResponseLive)
		assert.ErrorIs(t, err, domain.ErrCacheMiss)
	})

	t.Run("Upsert and Get", func(t *testing.T) {
		row := &domain.ToolResponse{
			RequestKey: key,
			Type:       domain.ToolResponseLive,
			ToolID:     "tool-1",
			Body:       `{"status":"shipped"}`,
			CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
		}
		require.NoError(t, cache.Upsert(ctx, row))

		got, err := cache.Get(ctx, key, domain.ToolResponseLive)
		require.NoError(t, err)
		assert.Equal(t, row.Body, got.Body)
		assert.Equal(t, row.ToolID, got.ToolID)
		assert.WithinDuration(t, row.CreatedAt, got.CreatedAt, time.Second)
	})

	t.Run("Upsert is last-writer-wins", func(t *testing.T) {
		row := &domain.ToolResponse{
			RequestKey: key,
			Type:       domain.ToolResponseLive,
			ToolID:     "tool-1",
			Body:       `{"status":"delivered"}`,
			CreatedAt:  time.Now().UTC(),
		}
		require.NoError(t, cache.Upsert(ctx, row))

		got, err := cache.Get(ctx, key, domain.ToolResponseLive)
		require.NoError(t, err)
		assert.Equal(t, `{"status":"delivered"}`, got.Body)
	})

	t.Run("Response types are independent rows", func(t *testing.T) {
		row := &domain.ToolResponse{
			RequestKey: key,
			Type:       domain.ToolResponseTest,
			ToolID:     "tool-1",
			Body:       `{"status":"test"}`,
			CreatedAt:  time.Now().UTC(),
		}
		require.NoError(t, cache.Upsert(ctx, row))

		live, err := cache.Get(ctx, key, domain.ToolResponseLive)
		require.NoError(t, err)
		assert.Equal(t, `{"status":"delivered"}`, live.Body)

		test, err := cache.Get(ctx, key, domain.ToolResponseTest)
		require.NoError(t, err)
		assert.Equal(t, `{"status":"test"}`, test.Body)
	})
}
