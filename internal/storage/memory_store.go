package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is a Store kept in process memory. Entities are stored as JSON
// so callers get the same copy semantics as with BadgerStore.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Create(entity Entity) error {
	if entity.GetID() == "" {
		return fmt.Errorf("entity ID cannot be empty")
	}
	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("marshaling entity: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[entity.GetID()]; ok {
		return fmt.Errorf("%w: %s", ErrExists, entity.GetID())
	}
	s.data[entity.GetID()] = data
	return nil
}

func (s *MemoryStore) Put(entity Entity) error {
	if entity.GetID() == "" {
		return fmt.Errorf("entity ID cannot be empty")
	}
	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("marshaling entity: %w", err)
	}

	s.mu.Lock()
	s.data[entity.GetID()] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(id string, entity Entity) error {
	s.mu.RLock()
	data, ok := s.data[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return json.Unmarshal(data, entity)
}

func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.data, id)
	return nil
}

func (s *MemoryStore) List(results interface{}) error {
	s.mu.RLock()
	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	values := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		values = append(values, s.data[id])
	}
	s.mu.RUnlock()

	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("listing entities: %w", err)
	}
	return json.Unmarshal(data, results)
}
