// Package memory provides an in-process storage backend.
// Contents live as long as the process.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Sternrassler/offline-cache/pkg/storage"
)

// Storage keeps named stores in maps guarded by a single lock.
type Storage struct {
	mu     sync.RWMutex
	stores map[string]map[string][]byte
}

// New creates an empty in-memory storage.
func New() *Storage {
	return &Storage{
		stores: make(map[string]map[string][]byte),
	}
}

// Open returns the named store, creating it if needed.
func (s *Storage) Open(ctx context.Context, name string) (storage.Store, error) {
	if err := storage.ValidateName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stores[name]; !ok {
		s.stores[name] = make(map[string][]byte)
	}
	return &store{parent: s, name: name}, nil
}

// Names lists all stores, sorted.
func (s *Storage) Names(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.stores))
	for name := range s.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Delete drops a store and its entries.
func (s *Storage) Delete(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.stores[name]
	delete(s.stores, name)
	return ok, nil
}

// Ping always succeeds.
func (s *Storage) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op.
func (s *Storage) Close() error {
	return nil
}

// Len returns the number of entries in the named store, or -1 if it does not exist.
func (s *Storage) Len(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, ok := s.stores[name]
	if !ok {
		return -1
	}
	return len(entries)
}

type store struct {
	parent *Storage
	name   string
}

func (st *store) Name() string {
	return st.name
}

func (st *store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	st.parent.mu.RLock()
	defer st.parent.mu.RUnlock()
	entries, ok := st.parent.stores[st.name]
	if !ok {
		return nil, storage.ErrNotFound
	}
	value, ok := entries[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (st *store) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	st.parent.mu.Lock()
	defer st.parent.mu.Unlock()
	entries, ok := st.parent.stores[st.name]
	if !ok {
		return &storage.Error{Op: "put", Store: st.name, Err: storage.ErrStoreDeleted}
	}
	entries[key] = append([]byte(nil), value...)
	return nil
}
