// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package bundle

import (
	"github.com/juju/errors"

	"github.com/juju/configbundle/core/entity"
)

// Mapping is the directive and result record for one entity of a
// bundle: what the exporter suggested, what the caller overrode, and
// what the resolution engine eventually did.
type Mapping interface {
	// Type returns the entity kind being mapped.
	Type() entity.Type

	// SourceId returns the entity's primary identity on the source
	// system, unique within the bundle.
	SourceId() string

	// SourceURI returns the entity's locator on the source system.
	SourceURI() string

	// Action returns the requested reconciliation.
	Action() Action

	// SetAction overrides the requested reconciliation. Callers use
	// this before an import, typically to turn NewOrExisting into
	// NewOrUpdate for singleton entities.
	SetAction(Action) error

	// Config returns the resolution constraints and matching hints.
	Config() MappingConfig

	// SetConfig replaces the resolution constraints. The config is
	// validated so that inconsistent hint combinations never reach the
	// resolution engine.
	SetConfig(MappingConfig) error

	// Resolved reports whether the mapping has been through the
	// resolution engine.
	Resolved() bool

	// ActionTaken returns the recorded outcome, empty until resolved.
	ActionTaken() ActionTaken

	// TargetId returns the entity's identity on the target system,
	// empty until resolved, and empty afterwards for outcomes that
	// commit no target identity.
	TargetId() string

	// SetResult records the outcome. It is write-once: recording a
	// second result is a programming error.
	SetResult(ActionTaken, string) error
}

// MappingArgs is an argument struct used to add a mapping to a bundle.
type MappingArgs struct {
	Type      entity.Type
	SourceId  string
	SourceURI string
	Action    Action
	Config    MappingConfig
}

type mapping struct {
	type_       entity.Type
	sourceId    string
	sourceURI   string
	action      Action
	config      MappingConfig
	actionTaken ActionTaken
	targetId    string
}

func newMapping(args MappingArgs) (*mapping, error) {
	if args.SourceId == "" {
		return nil, errors.NotValidf("mapping without source id")
	}
	if err := args.Type.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if err := args.Action.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if err := args.Config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &mapping{
		type_:     args.Type,
		sourceId:  args.SourceId,
		sourceURI: args.SourceURI,
		action:    args.Action,
		config:    args.Config,
	}, nil
}

// Type implements Mapping.
func (m *mapping) Type() entity.Type {
	return m.type_
}

// SourceId implements Mapping.
func (m *mapping) SourceId() string {
	return m.sourceId
}

// SourceURI implements Mapping.
func (m *mapping) SourceURI() string {
	return m.sourceURI
}

// Action implements Mapping.
func (m *mapping) Action() Action {
	return m.action
}

// SetAction implements Mapping.
func (m *mapping) SetAction(action Action) error {
	if err := action.Validate(); err != nil {
		return errors.Trace(err)
	}
	if m.Resolved() {
		return errors.Errorf("cannot change action of resolved mapping %s %q", m.type_, m.sourceId)
	}
	m.action = action
	return nil
}

// Config implements Mapping.
func (m *mapping) Config() MappingConfig {
	return m.config
}

// SetConfig implements Mapping.
func (m *mapping) SetConfig(config MappingConfig) error {
	if err := config.Validate(); err != nil {
		return errors.Trace(err)
	}
	if m.Resolved() {
		return errors.Errorf("cannot change config of resolved mapping %s %q", m.type_, m.sourceId)
	}
	m.config = config
	return nil
}

// Resolved implements Mapping.
func (m *mapping) Resolved() bool {
	return m.actionTaken != ""
}

// ActionTaken implements Mapping.
func (m *mapping) ActionTaken() ActionTaken {
	return m.actionTaken
}

// TargetId implements Mapping.
func (m *mapping) TargetId() string {
	return m.targetId
}

// SetResult implements Mapping.
func (m *mapping) SetResult(taken ActionTaken, targetId string) error {
	if err := taken.Validate(); err != nil {
		return errors.Trace(err)
	}
	if m.Resolved() {
		return errors.Errorf("result already recorded for mapping %s %q", m.type_, m.sourceId)
	}
	m.actionTaken = taken
	m.targetId = targetId
	return nil
}
