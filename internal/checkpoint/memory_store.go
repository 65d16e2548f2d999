package checkpoint

import (
	"context"
	"sync"
)

// InMemoryStore is a goroutine-safe Store backed by a map. Checkpoints
// do not survive a process restart; it exists for the local backend and
// for tests.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		data: make(map[string][]byte),
	}
}

var _ Store = (*InMemoryStore)(nil)

func (s *InMemoryStore) Save(ctx context.Context, sessionID, exchangeID string, cp map[string]any) error {
	data, err := encode(cp)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[storageKey(sessionID, exchangeID)] = data
	return nil
}

func (s *InMemoryStore) Load(ctx context.Context, sessionID, exchangeID string) (map[string]any, error) {
	s.mu.RLock()
	data, ok := s.data[storageKey(sessionID, exchangeID)]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	return decode(data)
}

func (s *InMemoryStore) Take(ctx context.Context, sessionID, exchangeID string) (map[string]any, error) {
	key := storageKey(sessionID, exchangeID)

	s.mu.Lock()
	data, ok := s.data[key]
	if ok {
		delete(s.data, key)
	}
	s.mu.Unlock()

	if !ok {
		return nil, ErrNotFound
	}
	return decode(data)
}

func (s *InMemoryStore) Delete(ctx context.Context, sessionID, exchangeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, storageKey(sessionID, exchangeID))
	return nil
}
