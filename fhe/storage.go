package fhe

import (
	"context"
	"sync"
)

// Storage persists serialized decryption authorizations keyed by
// (user, contract set). Implementations are last-write-wins; the
// manager tolerates concurrent cache-miss paths writing duplicate
// grants rather than requiring cross-call locking.
type Storage interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// InMemoryStorage keeps authorizations for the lifetime of the process.
type InMemoryStorage struct {
	mu    sync.RWMutex
	items map[string]string
}

func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{items: make(map[string]string)}
}

func (s *InMemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.items[key]
	return value, ok, nil
}

func (s *InMemoryStorage) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
	return nil
}
