package kvstore

import (
	"context"
	"fmt"
	"sync"

	appErr "github.com/devJinesh/DocuQuery/internal/pkg/errors"
)

type memoryStore struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func init() {
	Register("memory", func(args interface{}) (Store, error) {
		return NewMemory(), nil
	})
}

func NewMemory() Store {
	return &memoryStore{items: make(map[string][]byte)}
}

func (s *memoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return cloneBytes(v), nil
}

func (s *memoryStore) Set(ctx context.Context, key string, value []byte) error {
	_ = ctx
	if !validKey(key) {
		return fmt.Errorf("invalid key %q: %w", key, appErr.ErrInvalid)
	}
	s.mu.Lock()
	s.items[key] = cloneBytes(value)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

func cloneBytes(v []byte) []byte {
	if v == nil {
		return nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out
}
