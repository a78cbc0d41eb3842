// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package store defines the contract between the migration engine and
// the systems it reads from and writes to. The engine never talks to
// storage or transport directly; it is handed an EntityStore.
package store

import (
	"context"

	"github.com/juju/configbundle/core/entity"
)

// EntityStore is the closed set of operations the engine needs from a
// source or target system. Each call is individually atomic; nothing
// larger is, and caller supplied timeouts travel in the context.
type EntityStore interface {
	// Get returns the entity with the given primary identity, or an
	// error satisfying errors.IsNotFound.
	Get(ctx context.Context, t entity.Type, id string) (entity.Entity, error)

	// Find returns all entities of the given type accepted by the
	// matcher. Zero, one and many results are all valid; callers that
	// require uniqueness enforce it themselves.
	Find(ctx context.Context, t entity.Type, match Matcher) ([]entity.Entity, error)

	// Create stores a new entity built from the given snapshot and
	// returns the primary identity assigned by the store, which in
	// general differs from the snapshot's source identity.
	Create(ctx context.Context, e entity.Entity) (string, error)

	// Update replaces the body of the entity with the given identity.
	Update(ctx context.Context, id string, e entity.Entity) error

	// Delete removes the entity with the given identity.
	Delete(ctx context.Context, t entity.Type, id string) error
}

// Matcher selects entities within one type.
type Matcher interface {
	// Matches reports whether the candidate is selected.
	Matches(e entity.Entity) bool
}

type matcherFunc func(entity.Entity) bool

func (f matcherFunc) Matches(e entity.Entity) bool {
	return f(e)
}

// MatchById matches on the primary identity.
func MatchById(id string) Matcher {
	return matcherFunc(func(e entity.Entity) bool {
		return e.MatchesId(id)
	})
}

// MatchByGuid matches on the stable secondary identity.
func MatchByGuid(guid string) Matcher {
	return matcherFunc(func(e entity.Entity) bool {
		return e.MatchesGuid(guid)
	})
}

// MatchByName matches on the human readable name.
func MatchByName(name string) Matcher {
	return matcherFunc(func(e entity.Entity) bool {
		return e.MatchesName(name)
	})
}

// MatchAll matches every entity of the searched type. Exporters use it
// for type-scoped and whole-system root selection.
func MatchAll() Matcher {
	return matcherFunc(func(entity.Entity) bool {
		return true
	})
}
