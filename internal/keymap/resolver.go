//-------------------------------------------------------------------------
//
// pgEdge Warehouse Loader
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package keymap resolves natural keys to warehouse surrogate keys. The
// resolver is the load pipeline's only synchronization point: for any
// natural key, exactly one surrogate is ever allocated, no matter how
// many workers race on it.
package keymap

import (
	"context"
	"fmt"
	"sync"

	"github.com/pgEdge/warehouse-loader/internal/model"
)

// Store persists natural-to-surrogate mappings. Implementations guarantee
// at-most-one-winner: concurrent Allocate calls for the same key all
// observe the same surrogate, and surrogates increase monotonically.
// The warehouse-backed store lives in internal/warehouse; MemoryStore
// backs tests and embedded use.
type Store interface {
	// Allocate returns surrogates for the keys, creating mappings for
	// unknown ones. The created set names keys allocated by this call.
	Allocate(ctx context.Context, entity model.EntityType, naturalKeys []string) (ids map[string]int64, created map[string]bool, err error)

	// Lookup returns surrogates for already-known keys only. Unknown
	// keys are simply absent from the result.
	Lookup(ctx context.Context, entity model.EntityType, naturalKeys []string) (map[string]int64, error)
}

// Resolver caches mappings in front of a Store so repeat resolution is a
// lock-protected map read.
type Resolver struct {
	store Store

	mu    sync.RWMutex
	cache map[model.EntityType]map[string]int64
}

// New returns a Resolver over the given backing store.
func New(store Store) *Resolver {
	return &Resolver{
		store: store,
		cache: make(map[model.EntityType]map[string]int64),
	}
}

// Resolve returns the surrogate key for one natural key, allocating if it
// was never seen. The second return reports whether this call created the
// mapping.
func (r *Resolver) Resolve(ctx context.Context, entity model.EntityType, naturalKey string) (int64, bool, error) {
	if naturalKey == "" {
		return 0, false, fmt.Errorf("empty natural key for %s", entity)
	}

	if id, ok := r.cached(entity, naturalKey); ok {
		return id, false, nil
	}

	ids, created, err := r.store.Allocate(ctx, entity, []string{naturalKey})
	if err != nil {
		return 0, false, fmt.Errorf("failed to allocate %s key: %w", entity, err)
	}
	id, ok := ids[naturalKey]
	if !ok {
		return 0, false, fmt.Errorf("store returned no surrogate for %s %q", entity, naturalKey)
	}

	r.remember(entity, map[string]int64{naturalKey: id})
	return id, created[naturalKey], nil
}

// ResolveAll is the bulk form of Resolve. Only cache misses reach the
// store.
func (r *Resolver) ResolveAll(ctx context.Context, entity model.EntityType, naturalKeys []string) (map[string]int64, map[string]bool, error) {
	ids := make(map[string]int64, len(naturalKeys))
	var misses []string

	r.mu.RLock()
	entityCache := r.cache[entity]
	for _, key := range naturalKeys {
		if id, ok := entityCache[key]; ok {
			ids[key] = id
		} else {
			misses = append(misses, key)
		}
	}
	r.mu.RUnlock()

	if len(misses) == 0 {
		return ids, map[string]bool{}, nil
	}

	allocated, created, err := r.store.Allocate(ctx, entity, misses)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to allocate %s keys: %w", entity, err)
	}
	for key, id := range allocated {
		ids[key] = id
	}

	r.remember(entity, allocated)
	return ids, created, nil
}

// Lookup returns the surrogate for a natural key without allocating. The
// second return reports whether the key is known.
func (r *Resolver) Lookup(ctx context.Context, entity model.EntityType, naturalKey string) (int64, bool, error) {
	if id, ok := r.cached(entity, naturalKey); ok {
		return id, true, nil
	}

	found, err := r.store.Lookup(ctx, entity, []string{naturalKey})
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up %s key: %w", entity, err)
	}
	id, ok := found[naturalKey]
	if !ok {
		return 0, false, nil
	}

	r.remember(entity, map[string]int64{naturalKey: id})
	return id, true, nil
}

// LookupAll returns surrogates for the known subset of the keys, without
// allocating.
func (r *Resolver) LookupAll(ctx context.Context, entity model.EntityType, naturalKeys []string) (map[string]int64, error) {
	ids := make(map[string]int64, len(naturalKeys))
	var misses []string

	r.mu.RLock()
	entityCache := r.cache[entity]
	for _, key := range naturalKeys {
		if id, ok := entityCache[key]; ok {
			ids[key] = id
		} else {
			misses = append(misses, key)
		}
	}
	r.mu.RUnlock()

	if len(misses) == 0 {
		return ids, nil
	}

	found, err := r.store.Lookup(ctx, entity, misses)
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s keys: %w", entity, err)
	}
	for key, id := range found {
		ids[key] = id
	}

	r.remember(entity, found)
	return ids, nil
}

// Prime seeds the cache with mappings the caller already persisted, so
// later lookups skip the store. Fact stages use this after inserting
// parent rows.
func (r *Resolver) Prime(entity model.EntityType, ids map[string]int64) {
	r.remember(entity, ids)
}

func (r *Resolver) cached(entity model.EntityType, naturalKey string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.cache[entity][naturalKey]
	return id, ok
}

func (r *Resolver) remember(entity model.EntityType, ids map[string]int64) {
	if len(ids) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entityCache, ok := r.cache[entity]
	if !ok {
		entityCache = make(map[string]int64, len(ids))
		r.cache[entity] = entityCache
	}
	for key, id := range ids {
		entityCache[key] = id
	}
}
