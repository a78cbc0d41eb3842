// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package resolve

import (
	"github.com/juju/configbundle/core/bundle"
)

// Phase tracks one mapping through the resolution engine.
type Phase int

const (
	UNKNOWN Phase = iota
	PENDING
	RESOLVING
	IGNORED
	CREATED
	REUSED
	UPDATED
	DELETED
	FAILED
)

var phaseNames = []string{
	"UNKNOWN",
	"PENDING",
	"RESOLVING",
	"IGNORED",
	"CREATED",
	"REUSED",
	"UPDATED",
	"DELETED",
	"FAILED",
}

// String implements fmt.Stringer.
func (p Phase) String() string {
	i := int(p)
	if i >= 0 && i < len(phaseNames) {
		return phaseNames[i]
	}
	return "UNKNOWN"
}

// IsTerminal reports whether the phase is an end state.
func (p Phase) IsTerminal() bool {
	switch p {
	case IGNORED, CREATED, REUSED, UPDATED, DELETED, FAILED:
		return true
	}
	return false
}

var validTransitions = map[Phase][]Phase{
	PENDING:   {RESOLVING},
	RESOLVING: {IGNORED, CREATED, REUSED, UPDATED, DELETED, FAILED},
}

// CanTransitionTo reports whether the next phase is a valid move.
func (p Phase) CanTransitionTo(next Phase) bool {
	for _, allowed := range validTransitions[p] {
		if next == allowed {
			return true
		}
	}
	return false
}

// terminalPhase maps a recorded outcome onto its terminal phase.
func terminalPhase(taken bundle.ActionTaken) Phase {
	switch taken {
	case bundle.Ignored:
		return IGNORED
	case bundle.CreatedNew:
		return CREATED
	case bundle.UsedExisting:
		return REUSED
	case bundle.UpdatedExisting:
		return UPDATED
	case bundle.Deleted:
		return DELETED
	}
	return UNKNOWN
}
