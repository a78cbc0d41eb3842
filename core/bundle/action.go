// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package bundle

import (
	"github.com/juju/errors"
)

// Action is the reconciliation requested for one mapping. Exporters
// assign a type-dependent default; callers may override it before
// handing the bundle to the resolution engine.
type Action string

const (
	// NewOrExisting reuses a matching target entity, creating one from
	// the reference body only when no match exists.
	NewOrExisting Action = "NewOrExisting"

	// NewOrUpdate updates a matching target entity in place, creating
	// one when no match exists.
	NewOrUpdate Action = "NewOrUpdate"

	// AlwaysCreateNew creates a fresh target entity regardless of any
	// match, so the assigned target id in general differs from the
	// source id.
	AlwaysCreateNew Action = "AlwaysCreateNew"

	// Ignore leaves the target untouched for this mapping.
	Ignore Action = "Ignore"

	// Delete removes a matching target entity; absent a match the
	// mapping settles as Ignored.
	Delete Action = "Delete"
)

// Validate implements the closed enumeration check.
func (a Action) Validate() error {
	switch a {
	case NewOrExisting, NewOrUpdate, AlwaysCreateNew, Ignore, Delete:
		return nil
	}
	return errors.NotValidf("action %q", string(a))
}

// ActionTaken records what the resolution engine actually did for a
// mapping. It is written exactly once, at import time.
type ActionTaken string

const (
	CreatedNew      ActionTaken = "CreatedNew"
	UsedExisting    ActionTaken = "UsedExisting"
	UpdatedExisting ActionTaken = "UpdatedExisting"
	Ignored         ActionTaken = "Ignored"
	Deleted         ActionTaken = "Deleted"
)

// Validate implements the closed enumeration check.
func (a ActionTaken) Validate() error {
	switch a {
	case CreatedNew, UsedExisting, UpdatedExisting, Ignored, Deleted:
		return nil
	}
	return errors.NotValidf("action taken %q", string(a))
}
