// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package bundle

import (
	"github.com/juju/errors"
)

// MatchStrategy selects how the resolution engine searches the target
// system for an entity corresponding to a mapping.
type MatchStrategy string

const (
	// MatchById matches on the primary identity.
	MatchById MatchStrategy = "id"

	// MatchByName matches on the human readable name.
	MatchByName MatchStrategy = "name"

	// MatchByGuid matches on the stable secondary identity.
	MatchByGuid MatchStrategy = "guid"
)

// Validate implements the closed enumeration check.
func (s MatchStrategy) Validate() error {
	switch s {
	case MatchById, MatchByName, MatchByGuid:
		return nil
	}
	return errors.NotValidf("match strategy %q", string(s))
}

// MappingConfig carries the resolution constraints and matching hints
// for one mapping. The zero value means: match by identity, tolerate
// both a missing and an existing target.
type MappingConfig struct {
	// FailOnNew rejects the import if the mapped entity does not
	// already exist on the target, instead of creating it.
	FailOnNew bool

	// FailOnExisting rejects the import if the mapped entity already
	// exists on the target.
	FailOnExisting bool

	// MapBy overrides the default identity matching with the given
	// strategy. When set, MapTo supplies the value to match.
	MapBy MatchStrategy

	// MapTo is the value to match by when MapBy is set.
	MapTo string
}

// Validate rejects inconsistent combinations so that they surface when
// the config is attached to a mapping, not halfway through an import.
func (c MappingConfig) Validate() error {
	if c.MapBy != "" {
		if err := c.MapBy.Validate(); err != nil {
			return errors.Trace(err)
		}
		if c.MapTo == "" {
			return errors.NotValidf("MapBy %q without MapTo", c.MapBy)
		}
	} else if c.MapTo != "" {
		return errors.NotValidf("MapTo %q without MapBy", c.MapTo)
	}
	return nil
}
