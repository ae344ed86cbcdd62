package cache

import (
	"container/list"
	"context"
	"sync"
)

const defaultMaxEntries = 64

// MemoryStore is an in-process LRU-bounded cache store. Suitable for a single
// engine instance; multi-instance deployments share a RedisStore instead.
type MemoryStore struct {
	mu         sync.Mutex
	maxEntries int
	entries    map[string]*list.Element
	order      *list.List
}

type memoryEntry struct {
	key   string
	entry Entry
}

// NewMemoryStore creates a store bounded to maxEntries scopes. A
// non-positive bound falls back to the default.
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &MemoryStore{
		maxEntries: maxEntries,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
	}
}

// Get returns the entry for key and marks it most recently used.
func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	s.order.MoveToFront(elem)
	return elem.Value.(*memoryEntry).entry, true, nil
}

// Swap installs entry under its scope key, evicting the least recently used
// scope when the bound is exceeded.
func (s *MemoryStore) Swap(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entry.Scope.Key()
	if elem, ok := s.entries[key]; ok {
		elem.Value.(*memoryEntry).entry = entry
		s.order.MoveToFront(elem)
		return nil
	}

	s.entries[key] = s.order.PushFront(&memoryEntry{key: key, entry: entry})
	if s.order.Len() > s.maxEntries {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.entries, oldest.Value.(*memoryEntry).key)
	}
	return nil
}

// Size reports the number of cached scopes.
func (s *MemoryStore) Size(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len(), nil
}
