package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Sternrassler/offline-cache/pkg/storage"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrIneligible indicates a key that must never be stored (non-GET or cross-origin)
	ErrIneligible = errors.New("request not eligible for caching")
)

// Manager reads and writes CacheEntry values in one generation's store.
type Manager struct {
	store  storage.Store
	origin Origin
}

// NewManager creates a cache manager over the given store for an
// application served from origin.
func NewManager(store storage.Store, origin Origin) *Manager {
	if store == nil {
		panic("cache store cannot be nil")
	}
	return &Manager{
		store:  store,
		origin: origin,
	}
}

// Generation returns the name of the underlying store.
func (m *Manager) Generation() string {
	return m.store.Name()
}

// Origin returns the application origin this manager accepts keys for.
func (m *Manager) Origin() Origin {
	return m.origin
}

// Get retrieves a cache entry by key.
// Returns ErrCacheMiss if the key doesn't exist.
func (m *Manager) Get(ctx context.Context, key RequestKey) (*CacheEntry, error) {
	if !key.Eligible(m.origin) {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	data, err := m.store.Get(ctx, key.String())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("store get: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	CacheHits.Inc()
	return &entry, nil
}

// Put stores an entry under key, replacing any previous entry whole.
func (m *Manager) Put(ctx context.Context, key RequestKey, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	if !key.Eligible(m.origin) {
		return fmt.Errorf("%w: %s", ErrIneligible, key)
	}

	// Encode fully before touching the store so a write is all or nothing.
	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.store.Put(ctx, key.String(), data); err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("store put: %w", err)
	}

	CacheWrites.Inc()
	CacheWrittenBytes.Add(float64(len(data)))
	return nil
}
