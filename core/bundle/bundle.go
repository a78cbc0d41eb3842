// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package bundle defines the transport artifact exchanged between the
// export and import sides of a migration: an ordered sequence of
// entity snapshots plus a parallel ordered sequence of mappings, in
// dependency-first order. The wire encoding is versioned yaml; the
// ordering of both sequences is significant and preserved exactly.
package bundle

import (
	"time"

	"github.com/juju/errors"

	"github.com/juju/configbundle/core/entity"
)

// Bundle is the unit of export and import. It is a value object: the
// engine never persists it.
type Bundle interface {
	// ExportedAt returns the time the bundle was produced.
	ExportedAt() time.Time

	// References returns the entity snapshots, in dependency-first
	// order. Reference-only entities have a mapping but no snapshot
	// here.
	References() []entity.Entity

	// Mappings returns the mappings, one per distinct entity in the
	// exported closure, in dependency-first order.
	Mappings() []Mapping

	// Reference returns the snapshot carried for the given source id.
	Reference(sourceId string) (entity.Entity, bool)

	// AddReference appends an entity snapshot.
	AddReference(entity.Entity) error

	// AddMapping appends a mapping, enforcing source id uniqueness.
	AddMapping(MappingArgs) (Mapping, error)

	// Validate checks the bundle invariants: every snapshot has a
	// mapping, and every reference edge whose target is mapped in this
	// bundle points strictly backwards. Callers use it as an import
	// guard on decoded bundles.
	Validate() error
}

// Args is an argument struct used to create an empty Bundle.
type Args struct {
	ExportedAt time.Time
}

type bundle struct {
	exportedAt time.Time
	references []entity.Entity
	mappings   []*mapping

	// byId indexes both sequences by source id.
	refsById     map[string]entity.Entity
	mappingsById map[string]*mapping
}

// New returns an empty Bundle.
func New(args Args) Bundle {
	return &bundle{
		exportedAt:   args.ExportedAt,
		refsById:     make(map[string]entity.Entity),
		mappingsById: make(map[string]*mapping),
	}
}

// ExportedAt implements Bundle.
func (b *bundle) ExportedAt() time.Time {
	return b.exportedAt
}

// References implements Bundle.
func (b *bundle) References() []entity.Entity {
	result := make([]entity.Entity, len(b.references))
	copy(result, b.references)
	return result
}

// Mappings implements Bundle.
func (b *bundle) Mappings() []Mapping {
	result := make([]Mapping, len(b.mappings))
	for i, m := range b.mappings {
		result[i] = m
	}
	return result
}

// Reference implements Bundle.
func (b *bundle) Reference(sourceId string) (entity.Entity, bool) {
	e, ok := b.refsById[sourceId]
	return e, ok
}

// AddReference implements Bundle.
func (b *bundle) AddReference(e entity.Entity) error {
	if !e.HasPayload() {
		return errors.NotValidf("reference body for %s %q without payload", e.Type(), e.Id())
	}
	if _, ok := b.refsById[e.Id()]; ok {
		return errors.AlreadyExistsf("reference body %q", e.Id())
	}
	b.references = append(b.references, e)
	b.refsById[e.Id()] = e
	return nil
}

// AddMapping implements Bundle.
func (b *bundle) AddMapping(args MappingArgs) (Mapping, error) {
	if _, ok := b.mappingsById[args.SourceId]; ok {
		return nil, errors.AlreadyExistsf("mapping %q", args.SourceId)
	}
	m, err := newMapping(args)
	if err != nil {
		return nil, errors.Trace(err)
	}
	b.mappings = append(b.mappings, m)
	b.mappingsById[args.SourceId] = m
	return m, nil
}

// Validate implements Bundle.
func (b *bundle) Validate() error {
	index := make(map[string]int, len(b.mappings))
	for i, m := range b.mappings {
		index[m.SourceId()] = i
	}
	for _, e := range b.references {
		if _, ok := index[e.Id()]; !ok {
			return errors.Errorf("reference body %s %q has no mapping", e.Type(), e.Id())
		}
	}
	for i, m := range b.mappings {
		body, ok := b.refsById[m.SourceId()]
		if !ok {
			continue
		}
		for _, ref := range body.References() {
			dep, mapped := index[ref.Id]
			if !mapped {
				// The edge escapes the bundle; the resolver leaves
				// such identities alone.
				continue
			}
			if dep >= i {
				return errors.Errorf(
					"mapping %s %q depends on %s %q which is not mapped before it",
					m.Type(), m.SourceId(), ref.Type, ref.Id,
				)
			}
		}
	}
	return nil
}
