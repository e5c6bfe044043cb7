// Package cache provides the versioned read-through cache and the coherence
// manager that keeps it aligned with committed settlements.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/finbase/tradeledger/pkg/errors"
)

// ErrMiss is returned by Get when a key is absent or expired.
var ErrMiss = errors.New(errors.KindCache, "cache miss")

// Cache is the key/version addressed cache contract. Values are opaque bytes;
// callers marshal what they store.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, version int, ttl time.Duration) error
	Get(ctx context.Context, key string, version int) ([]byte, error)
	Delete(ctx context.Context, key string, version int) error
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process Cache used by tests and standalone runs.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

func (m *Memory) Set(_ context.Context, key string, value []byte, version int, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	m.entries[versionedKey(key, version)] = memoryEntry{value: value, expiresAt: expires}
	return nil
}

func (m *Memory) Get(_ context.Context, key string, version int) ([]byte, error) {
	m.mu.RLock()
	entry, ok := m.entries[versionedKey(key, version)]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrMiss
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		m.mu.Lock()
		delete(m.entries, versionedKey(key, version))
		m.mu.Unlock()
		return nil, ErrMiss
	}
	return entry.value, nil
}

func (m *Memory) Delete(_ context.Context, key string, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, versionedKey(key, version))
	return nil
}
