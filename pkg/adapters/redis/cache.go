package redis

import (
	"context"
	"encoding/json"
	"fmt"

	backend "github.com/redis/go-redis/v9"

	"github.com/stackmint/botflow/pkg/domain"
)

// ToolResponseCache implements ports.ToolResponseCache using Redis.
//
// Writes are plain SETs keyed by (type, request key): Redis makes the upsert
// atomic, so concurrent identical requests race harmlessly to the same row
// with last-writer-wins semantics. Rows carry no Redis expiration by
// default; staleness is the reader's concern, mirroring the row-kept,
// ignored-at-read contract.
type ToolResponseCache struct {
	client *backend.Client
	prefix string
}

// CacheOption configures the ToolResponseCache.
type CacheOption func(*ToolResponseCache)

// WithCachePrefix sets the key prefix for cache rows.
func WithCachePrefix(prefix string) CacheOption {
	return func(c *ToolResponseCache) { c.prefix = prefix }
}

// NewToolResponseCache creates a Redis-backed tool response cache from an
// existing client.
func NewToolResponseCache(client *backend.Client, opts ...CacheOption) *ToolResponseCache {
	cache := &ToolResponseCache{
		client: client,
		prefix: "botflow:toolresponse:",
	}
	for _, opt := range opts {
		opt(cache)
	}
	return cache
}

func (c *ToolResponseCache) key(requestKey, responseType string) string {
	return c.prefix + responseType + ":" + requestKey
}

// Get returns the cached row, regardless of age.
func (c *ToolResponseCache) Get(ctx context.Context, requestKey, responseType string) (*domain.ToolResponse, error) {
	val, err := c.client.Get(ctx, c.key(requestKey, responseType)).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, domain.ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get tool response from redis: %w", err)
	}

	var row domain.ToolResponse
	if err := json.Unmarshal([]byte(val), &row); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tool response: %w", err)
	}
	return &row, nil
}

// Upsert writes the row, replacing any previous row with the same identity.
func (c *ToolResponseCache) Upsert(ctx context.Context, response *domain.ToolResponse) error {
	data, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to marshal tool response: %w", err)
	}
	if err := c.client.Set(ctx, c.key(response.RequestKey, response.Type), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save tool response to redis: %w", err)
	}
	return nil
}
