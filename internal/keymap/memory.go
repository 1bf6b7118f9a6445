package keymap

import (
	"context"
	"sync"

	"github.com/pgEdge/warehouse-loader/internal/model"
)

// MemoryStore is an in-process Store. Surrogates count up from 1 per
// entity type; the mutex is what makes allocation at-most-one-winner.
type MemoryStore struct {
	mu   sync.Mutex
	next map[model.EntityType]int64
	keys map[model.EntityType]map[string]int64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		next: make(map[model.EntityType]int64),
		keys: make(map[model.EntityType]map[string]int64),
	}
}

// Allocate implements Store.
func (s *MemoryStore) Allocate(ctx context.Context, entity model.EntityType, naturalKeys []string) (map[string]int64, map[string]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entityKeys, ok := s.keys[entity]
	if !ok {
		entityKeys = make(map[string]int64)
		s.keys[entity] = entityKeys
	}

	ids := make(map[string]int64, len(naturalKeys))
	created := make(map[string]bool)
	for _, key := range naturalKeys {
		if id, ok := entityKeys[key]; ok {
			ids[key] = id
			continue
		}
		s.next[entity]++
		id := s.next[entity]
		entityKeys[key] = id
		ids[key] = id
		created[key] = true
	}
	return ids, created, nil
}

// Lookup implements Store.
func (s *MemoryStore) Lookup(ctx context.Context, entity model.EntityType, naturalKeys []string) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make(map[string]int64, len(naturalKeys))
	for _, key := range naturalKeys {
		if id, ok := s.keys[entity][key]; ok {
			ids[key] = id
		}
	}
	return ids, nil
}
