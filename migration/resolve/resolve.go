// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package resolve applies migration bundles to a target system. It
// processes mappings strictly in bundle order, decides per mapping
// whether to create, reuse, update, delete or ignore, and rewrites
// forward references in not-yet-applied bodies as new target
// identities are assigned.
//
// Correctness of the reference rewriting depends on every dependency's
// target identity being committed before any dependent is processed,
// so applying one bundle is an inherently sequential pipeline.
// Independent bundles may be applied concurrently; serializing
// concurrent bundles that touch overlapping target entities is the
// caller's responsibility.
package resolve

import (
	"context"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/juju/configbundle/core/bundle"
	"github.com/juju/configbundle/core/entity"
	migrationerrors "github.com/juju/configbundle/migration/errors"
	"github.com/juju/configbundle/store"
)

var logger = loggo.GetLogger("configbundle.resolve")

// Store is the side of the target system the resolver needs.
type Store interface {
	// Find returns all entities of the given type accepted by the
	// matcher.
	Find(ctx context.Context, t entity.Type, match store.Matcher) ([]entity.Entity, error)

	// Create stores a new entity and returns its assigned identity.
	Create(ctx context.Context, e entity.Entity) (string, error)

	// Update replaces the body of an existing entity.
	Update(ctx context.Context, id string, e entity.Entity) error

	// Delete removes an existing entity.
	Delete(ctx context.Context, t entity.Type, id string) error
}

// Report summarises what one resolution pass did.
type Report struct {
	// Processed counts the mappings that reached a terminal outcome.
	// On failure it is strictly smaller than the number of mappings,
	// and everything counted has already taken effect on the target.
	Processed int

	// Counts holds the processed mappings per outcome.
	Counts map[bundle.ActionTaken]int
}

// Resolver is the mapping resolution engine.
type Resolver struct {
	store Store
}

// NewResolver returns a Resolver applying bundles against the given
// target store.
func NewResolver(st Store) *Resolver {
	return &Resolver{store: st}
}

// Resolve applies the bundle to the target in bundle order, recording
// an outcome and target identity on every mapping. On a fatal
// condition the remaining mappings are abandoned: mappings processed
// before the failure stay committed on the target and keep their
// recorded outcomes, and the returned report covers exactly those. No
// rollback is attempted; re-submitting a freshly decoded copy of the
// same bundle is the supported recovery path.
func (r *Resolver) Resolve(ctx context.Context, b bundle.Bundle) (*Report, error) {
	report := &Report{Counts: make(map[bundle.ActionTaken]int)}
	// resolved maps source ids to committed target ids, feeding the
	// reference rewrite of later mappings.
	resolved := make(map[string]string)
	for i, m := range b.Mappings() {
		if m.Resolved() {
			return report, errors.Errorf(
				"mapping %d (%s %q) already resolved; import a freshly decoded bundle",
				i, m.Type(), m.SourceId())
		}
		phase := PENDING
		advance := func(next Phase) error {
			if !phase.CanTransitionTo(next) {
				return errors.Errorf("mapping %s %q cannot move from %s to %s",
					m.Type(), m.SourceId(), phase, next)
			}
			phase = next
			return nil
		}
		if err := advance(RESOLVING); err != nil {
			return report, errors.Trace(err)
		}
		taken, targetId, err := r.resolveMapping(ctx, b, m, resolved)
		if err != nil {
			_ = advance(FAILED)
			return report, errors.Annotatef(err, "mapping %d (%s %q)", i, m.Type(), m.SourceId())
		}
		if err := advance(terminalPhase(taken)); err != nil {
			return report, errors.Trace(err)
		}
		if err := m.SetResult(taken, targetId); err != nil {
			return report, errors.Trace(err)
		}
		if targetId != "" {
			resolved[m.SourceId()] = targetId
		}
		logger.Debugf("mapping %s %q: %s (target %q)", m.Type(), m.SourceId(), taken, targetId)
		report.Processed++
		report.Counts[taken]++
	}
	logger.Infof("resolved bundle: %d mappings applied", report.Processed)
	return report, nil
}

func (r *Resolver) resolveMapping(
	ctx context.Context,
	b bundle.Bundle,
	m bundle.Mapping,
	resolved map[string]string,
) (bundle.ActionTaken, string, error) {
	config := m.Config()
	matches, err := r.findMatches(ctx, b, m)
	if err != nil {
		return "", "", errors.Trace(err)
	}
	if len(matches) > 1 {
		return "", "", errors.Annotatef(migrationerrors.AmbiguousTarget,
			"%d target matches for %s %q", len(matches), m.Type(), m.SourceId())
	}
	var match entity.Entity
	if len(matches) == 1 {
		match = matches[0]
	}

	body, hasBody := b.Reference(m.SourceId())
	if hasBody {
		body = rewriteReferences(body, resolved)
	}

	switch m.Action() {
	case bundle.Ignore:
		if match != nil {
			if config.FailOnExisting {
				return "", "", errors.Annotatef(migrationerrors.PolicyViolation,
					"%s %q already exists on target", m.Type(), m.SourceId())
			}
			return bundle.Ignored, match.Id(), nil
		}
		if config.FailOnNew {
			return "", "", errors.Annotatef(migrationerrors.PolicyViolation,
				"%s %q does not exist on target", m.Type(), m.SourceId())
		}
		return bundle.Ignored, "", nil

	case bundle.NewOrExisting:
		if match != nil {
			return bundle.UsedExisting, match.Id(), nil
		}
		return r.create(ctx, m, body, hasBody)

	case bundle.NewOrUpdate:
		if match != nil {
			if !hasBody {
				return "", "", errors.Annotatef(migrationerrors.Unresolvable,
					"%s %q: reference required but absent", m.Type(), m.SourceId())
			}
			if err := r.store.Update(ctx, match.Id(), body); err != nil {
				return "", "", errors.Annotatef(err, "updating %s %q", m.Type(), match.Id())
			}
			return bundle.UpdatedExisting, match.Id(), nil
		}
		return r.create(ctx, m, body, hasBody)

	case bundle.AlwaysCreateNew:
		if match != nil && config.FailOnExisting {
			return "", "", errors.Annotatef(migrationerrors.PolicyViolation,
				"%s %q already exists on target", m.Type(), m.SourceId())
		}
		if hasBody {
			body, err = r.renameOnCollision(ctx, body, config)
			if err != nil {
				return "", "", errors.Trace(err)
			}
		}
		return r.create(ctx, m, body, hasBody)

	case bundle.Delete:
		if match == nil {
			return bundle.Ignored, "", nil
		}
		if err := r.store.Delete(ctx, m.Type(), match.Id()); err != nil {
			return "", "", errors.Annotatef(err, "deleting %s %q", m.Type(), match.Id())
		}
		return bundle.Deleted, match.Id(), nil
	}
	return "", "", errors.NotValidf("action %q", m.Action())
}

// findMatches searches the target under the mapping's configured
// strategy, or failing that by the mapping's own source identity and
// then the reference body's secondary identity.
func (r *Resolver) findMatches(ctx context.Context, b bundle.Bundle, m bundle.Mapping) ([]entity.Entity, error) {
	config := m.Config()
	if config.MapBy != "" {
		var matcher store.Matcher
		switch config.MapBy {
		case bundle.MatchById:
			matcher = store.MatchById(config.MapTo)
		case bundle.MatchByName:
			matcher = store.MatchByName(config.MapTo)
		case bundle.MatchByGuid:
			matcher = store.MatchByGuid(config.MapTo)
		default:
			return nil, errors.NotValidf("match strategy %q", config.MapBy)
		}
		matches, err := r.store.Find(ctx, m.Type(), matcher)
		return matches, errors.Trace(err)
	}
	matches, err := r.store.Find(ctx, m.Type(), store.MatchById(m.SourceId()))
	if err != nil || len(matches) > 0 {
		return matches, errors.Trace(err)
	}
	if body, ok := b.Reference(m.SourceId()); ok && body.Guid() != "" {
		matches, err = r.store.Find(ctx, m.Type(), store.MatchByGuid(body.Guid()))
		return matches, errors.Trace(err)
	}
	return nil, nil
}

func (r *Resolver) create(ctx context.Context, m bundle.Mapping, body entity.Entity, hasBody bool) (bundle.ActionTaken, string, error) {
	if m.Config().FailOnNew {
		return "", "", errors.Annotatef(migrationerrors.PolicyViolation,
			"%s %q does not exist on target and must not be created", m.Type(), m.SourceId())
	}
	if !hasBody {
		return "", "", errors.Annotatef(migrationerrors.Unresolvable,
			"%s %q: reference required but absent", m.Type(), m.SourceId())
	}
	id, err := r.store.Create(ctx, body)
	if err != nil {
		return "", "", errors.Annotatef(err, "creating %s %q", m.Type(), m.SourceId())
	}
	return bundle.CreatedNew, id, nil
}

// renameOnCollision applies the explicit AlwaysCreateNew naming
// policy: the engine never invents names, so a collision is only
// renamed when the caller supplied a replacement through
// MapBy=name/MapTo; otherwise the colliding name is kept and target
// side uniqueness, if any, is the store's concern.
func (r *Resolver) renameOnCollision(ctx context.Context, body entity.Entity, config bundle.MappingConfig) (entity.Entity, error) {
	if config.MapBy != bundle.MatchByName || body.Name() == "" {
		return body, nil
	}
	colliding, err := r.store.Find(ctx, body.Type(), store.MatchByName(body.Name()))
	if err != nil {
		return nil, errors.Annotatef(err, "checking name collision for %s %q", body.Type(), body.Name())
	}
	if len(colliding) == 0 {
		return body, nil
	}
	logger.Debugf("renaming %s %q to %q on name collision", body.Type(), body.Name(), config.MapTo)
	return body.WithName(config.MapTo), nil
}

// rewriteReferences points the body's outbound references at the
// target identities committed earlier in this pass. References whose
// targets have not been resolved are left alone.
func rewriteReferences(body entity.Entity, resolved map[string]string) entity.Entity {
	refs := body.References()
	changed := false
	for i, ref := range refs {
		if targetId, ok := resolved[ref.Id]; ok && targetId != ref.Id {
			refs[i].Id = targetId
			changed = true
		}
	}
	if !changed {
		return body
	}
	return body.WithReferences(refs)
}
