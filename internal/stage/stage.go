// Package stage implements the two article transformations: length
// normalization and paragraph-aligned translation. Both race a snapshot of
// backend identities through a Racer and memoize accepted results in a
// content-addressed Cache.
package stage

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/valpere/news2docx/internal/backend"
	"github.com/valpere/news2docx/internal/selector"
	"github.com/valpere/news2docx/internal/store"
)

// Racer dispatches one request to several candidates. *selector.Selector
// implements it.
type Racer interface {
	Race(ctx context.Context, candidates []backend.Identity, req backend.Request, validate selector.Validator) (*selector.Result, error)
}

// Cache is the content cache contract shared by store.Store and
// store.MemoryCache. A nil Cache disables caching.
type Cache interface {
	Get(ctx context.Context, key store.Key) ([]byte, bool)
	Put(ctx context.Context, key store.Key, payload []byte)
}

func cacheGet(ctx context.Context, c Cache, key store.Key, v interface{}, logger *slog.Logger) bool {
	if c == nil {
		return false
	}
	data, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		logger.Warn("ignoring unreadable cache entry", "key", key.String(), "error", err)
		return false
	}
	return true
}

func cachePut(ctx context.Context, c Cache, key store.Key, v interface{}, logger *slog.Logger) {
	if c == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		logger.Warn("failed to encode cache entry", "key", key.String(), "error", err)
		return
	}
	c.Put(ctx, key, data)
}
