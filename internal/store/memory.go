package store

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryCache is an in-process cache with the same contract as Store. It
// does not survive a restart.
type MemoryCache struct {
	mu        sync.RWMutex
	entries   map[Key]Entry
	anomalies atomic.Int64
	logger    *slog.Logger
}

func NewMemoryCache(logger *slog.Logger) *MemoryCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryCache{
		entries: make(map[Key]Entry),
		logger:  logger,
	}
}

func (m *MemoryCache) Get(_ context.Context, key Key) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	return bytes.Clone(e.Payload), true
}

func (m *MemoryCache) Put(_ context.Context, key Key, payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.entries[key]; ok {
		if bytes.Equal(prev.Payload, payload) {
			return
		}
		m.anomalies.Add(1)
		m.logger.Warn("cache overwrite with differing payload", "key", key.String())
	}
	m.entries[key] = Entry{
		Key:       key,
		Payload:   bytes.Clone(payload),
		CreatedAt: time.Now(),
	}
}

// Anomalies counts overwrites of an existing key with a different payload.
func (m *MemoryCache) Anomalies() int64 {
	return m.anomalies.Load()
}

// Len returns the number of cached entries.
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
