// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package memstore provides a concurrency-safe in-memory EntityStore.
// It backs the engine's tests and serves as the reference for what the
// engine assumes of a real store: per-call atomicity and store
// assigned identities on create.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/juju/errors"
	"github.com/juju/utils/v4"

	"github.com/juju/configbundle/core/entity"
	"github.com/juju/configbundle/store"
)

// Store implements store.EntityStore in memory.
type Store struct {
	mu       sync.Mutex
	entities map[entity.Type]map[string]entity.Entity
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		entities: make(map[entity.Type]map[string]entity.Entity),
	}
}

// Add seeds the store with a snapshot under its own identity, without
// the identity reassignment Create performs. Tests use it to lay out
// source and target fixtures.
func (s *Store) Add(e entity.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(e)
}

func (s *Store) put(e entity.Entity) {
	byId, ok := s.entities[e.Type()]
	if !ok {
		byId = make(map[string]entity.Entity)
		s.entities[e.Type()] = byId
	}
	byId[e.Id()] = e
}

// Get implements store.EntityStore.
func (s *Store) Get(_ context.Context, t entity.Type, id string) (entity.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[t][id]
	if !ok {
		return nil, errors.NotFoundf("%s %q", t, id)
	}
	return e, nil
}

// Find implements store.EntityStore. Results come back in id order so
// that multi-match outcomes are deterministic.
func (s *Store) Find(_ context.Context, t entity.Type, match store.Matcher) ([]entity.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []entity.Entity
	for _, e := range s.entities[t] {
		if match.Matches(e) {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Id() < result[j].Id()
	})
	return result, nil
}

// Create implements store.EntityStore. The stored entity gets a fresh
// identity; the snapshot's source identity is discarded.
func (s *Store) Create(_ context.Context, e entity.Entity) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := utils.MustNewUUID().String()
	s.put(entity.NewEntity(entity.EntityArgs{
		Type:       e.Type(),
		Id:         id,
		Guid:       e.Guid(),
		Name:       e.Name(),
		Payload:    e.Payload(),
		References: e.References(),
	}))
	return id, nil
}

// Update implements store.EntityStore.
func (s *Store) Update(_ context.Context, id string, e entity.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[e.Type()][id]; !ok {
		return errors.NotFoundf("%s %q", e.Type(), id)
	}
	s.put(entity.NewEntity(entity.EntityArgs{
		Type:       e.Type(),
		Id:         id,
		Guid:       e.Guid(),
		Name:       e.Name(),
		Payload:    e.Payload(),
		References: e.References(),
	}))
	return nil
}

// Delete implements store.EntityStore.
func (s *Store) Delete(_ context.Context, t entity.Type, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[t][id]; !ok {
		return errors.NotFoundf("%s %q", t, id)
	}
	delete(s.entities[t], id)
	return nil
}
