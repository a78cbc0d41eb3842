// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package export builds migration bundles. Given one or more root
// entities it computes the transitive closure of referenced entities
// and emits them in dependency-first order: every entity's mapping
// appears strictly before the mapping of anything that depends on it.
package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/juju/clock"
	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/juju/configbundle/core/bundle"
	"github.com/juju/configbundle/core/entity"
	migrationerrors "github.com/juju/configbundle/migration/errors"
	"github.com/juju/configbundle/store"
)

var logger = loggo.GetLogger("configbundle.export")

// Store is the read side of the source system.
type Store interface {
	// Get returns the entity with the given primary identity, or an
	// error satisfying errors.IsNotFound.
	Get(ctx context.Context, t entity.Type, id string) (entity.Entity, error)

	// Find returns all entities of the given type accepted by the
	// matcher.
	Find(ctx context.Context, t entity.Type, match store.Matcher) ([]entity.Entity, error)
}

// Args selects what to export.
type Args struct {
	// Roots names explicit root entities. A named root that does not
	// exist fails the export with a not found error.
	Roots []entity.Ref

	// Types selects every entity of the given types as a root.
	Types []entity.Type

	// All selects every entity of every known type as a root.
	All bool

	// Required names roots whose transitive dependencies must already
	// exist on the target: the dependencies' mappings carry
	// FailOnNew so the resolver rejects rather than creates.
	Required []entity.Ref

	// DefaultActions overrides the exporter's per-type default action
	// table for this export.
	DefaultActions map[entity.Type]bundle.Action

	// Source is the base locator used to form each mapping's source
	// URI. May be empty.
	Source string
}

// DefaultActionTable returns the per-type default action assigned to
// freshly exported mappings. Every built-in type defaults to
// NewOrExisting; the table is deliberately configuration, not code, so
// deployments can validate it against their target system and callers
// can override per export. Singleton-per-target types such as
// AUDIT_CONFIG are commonly switched to NewOrUpdate by the caller
// before import.
func DefaultActionTable() map[entity.Type]bundle.Action {
	table := make(map[entity.Type]bundle.Action)
	for _, t := range entity.Types() {
		table[t] = bundle.NewOrExisting
	}
	return table
}

// Exporter is the dependency graph builder.
type Exporter struct {
	store Store
	clock clock.Clock
}

// NewExporter returns an Exporter reading from the given store. The
// clock stamps produced bundles.
func NewExporter(st Store, clk clock.Clock) *Exporter {
	return &Exporter{store: st, clock: clk}
}

// Export builds a bundle for the selected roots. On any failure no
// partial bundle is returned.
func (e *Exporter) Export(ctx context.Context, args Args) (bundle.Bundle, error) {
	defaults := DefaultActionTable()
	for t, action := range args.DefaultActions {
		if err := t.Validate(); err != nil {
			return nil, errors.Trace(err)
		}
		if err := action.Validate(); err != nil {
			return nil, errors.Trace(err)
		}
		defaults[t] = action
	}

	roots, err := e.collectRoots(ctx, args)
	if err != nil {
		return nil, errors.Trace(err)
	}
	order, snapshots, err := e.traverse(ctx, roots)
	if err != nil {
		return nil, errors.Trace(err)
	}
	requiredDeps := requiredDependencies(args.Required, snapshots)

	result := bundle.New(bundle.Args{ExportedAt: e.clock.Now().UTC()})
	for _, ent := range order {
		if ent.HasPayload() {
			if err := result.AddReference(ent); err != nil {
				return nil, errors.Trace(err)
			}
		}
		action, ok := defaults[ent.Type()]
		if !ok {
			action = bundle.NewOrExisting
		}
		var config bundle.MappingConfig
		if requiredDeps.Contains(entity.Key(ent)) {
			config.FailOnNew = true
		}
		if _, err := result.AddMapping(bundle.MappingArgs{
			Type:      ent.Type(),
			SourceId:  ent.Id(),
			SourceURI: sourceURI(args.Source, ent),
			Action:    action,
			Config:    config,
		}); err != nil {
			return nil, errors.Trace(err)
		}
	}
	logger.Infof("exported bundle: %d mappings, %d reference bodies",
		len(result.Mappings()), len(result.References()))
	return result, nil
}

func (e *Exporter) collectRoots(ctx context.Context, args Args) ([]entity.Entity, error) {
	var roots []entity.Entity
	seen := set.NewStrings()
	add := func(ent entity.Entity) {
		key := entity.Key(ent)
		if seen.Contains(key) {
			return
		}
		seen.Add(key)
		roots = append(roots, ent)
	}

	for _, ref := range args.Roots {
		ent, err := e.store.Get(ctx, ref.Type, ref.Id)
		if err != nil {
			return nil, errors.Annotatef(err, "root entity")
		}
		add(ent)
	}
	types := args.Types
	if args.All {
		types = entity.Types()
	}
	for _, t := range types {
		if err := t.Validate(); err != nil {
			return nil, errors.Trace(err)
		}
		found, err := e.store.Find(ctx, t, store.MatchAll())
		if err != nil {
			return nil, errors.Annotatef(err, "finding %s roots", t)
		}
		for _, ent := range found {
			add(ent)
		}
	}
	if len(roots) == 0 && len(args.Roots) == 0 && len(types) == 0 {
		return nil, errors.NotValidf("export without roots")
	}
	return roots, nil
}

type frame struct {
	entity   entity.Entity
	expanded bool
}

// traverse walks the reference graph depth-first from each root and
// returns the closure in post-order, which is dependency-first by
// construction. Each entity is visited at most once; a back edge in a
// cyclic model is simply not re-descended.
func (e *Exporter) traverse(ctx context.Context, roots []entity.Entity) ([]entity.Entity, map[string]entity.Entity, error) {
	visited := set.NewStrings()
	snapshots := make(map[string]entity.Entity)
	var order []entity.Entity

	var stack []*frame
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, &frame{entity: roots[i]})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		if !f.expanded {
			key := entity.Key(f.entity)
			if visited.Contains(key) {
				// Reached again through a shared edge while its first
				// frame was still queued.
				stack = stack[:len(stack)-1]
				continue
			}
			f.expanded = true
			visited.Add(key)
			logger.Debugf("visiting %s %q", f.entity.Type(), f.entity.Id())
			refs := f.entity.References()
			for i := len(refs) - 1; i >= 0; i-- {
				ref := refs[i]
				refKey := entity.Ref{Type: ref.Type, Id: ref.Id}.Key()
				if visited.Contains(refKey) {
					continue
				}
				dep, err := e.fetchDependency(ctx, f.entity, ref)
				if err != nil {
					return nil, nil, errors.Trace(err)
				}
				stack = append(stack, &frame{entity: dep})
			}
			continue
		}
		stack = stack[:len(stack)-1]
		order = append(order, f.entity)
		snapshots[entity.Key(f.entity)] = f.entity
	}
	return order, snapshots, nil
}

func (e *Exporter) fetchDependency(ctx context.Context, owner entity.Entity, ref entity.Reference) (entity.Entity, error) {
	dep, err := e.store.Get(ctx, ref.Type, ref.Id)
	if errors.IsNotFound(err) {
		if !ref.Optional {
			return nil, errors.Annotatef(migrationerrors.Unresolvable,
				"dependency %s %q of %s %q", ref.Type, ref.Id, owner.Type(), owner.Id())
		}
		// A reference-only dependency travels as a mapping with no
		// body.
		return entity.NewEntity(entity.EntityArgs{Type: ref.Type, Id: ref.Id}), nil
	} else if err != nil {
		return nil, errors.Annotatef(err, "retrieving %s %q", ref.Type, ref.Id)
	}
	if !dep.HasPayload() && !ref.Optional {
		return nil, errors.Annotatef(migrationerrors.Unresolvable,
			"dependency %s %q of %s %q", ref.Type, ref.Id, owner.Type(), owner.Id())
	}
	return dep, nil
}

// requiredDependencies returns the keys of all transitive dependencies
// of the required roots, the roots themselves excluded.
func requiredDependencies(required []entity.Ref, snapshots map[string]entity.Entity) set.Strings {
	result := set.NewStrings()
	for _, root := range required {
		seen := set.NewStrings(root.Key())
		stack := []string{root.Key()}
		for len(stack) > 0 {
			key := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			snap, ok := snapshots[key]
			if !ok {
				continue
			}
			for _, ref := range snap.References() {
				refKey := entity.Ref{Type: ref.Type, Id: ref.Id}.Key()
				if seen.Contains(refKey) {
					continue
				}
				seen.Add(refKey)
				result.Add(refKey)
				stack = append(stack, refKey)
			}
		}
	}
	return result
}

func sourceURI(base string, e entity.Entity) string {
	if base == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/%s",
		strings.TrimSuffix(base, "/"), strings.ToLower(string(e.Type())), e.Id())
}
