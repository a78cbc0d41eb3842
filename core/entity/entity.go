// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package entity holds the identity model shared by the export and
// import sides of a migration. An Entity is an immutable snapshot of
// one configuration object on a source or target system: the engine
// never interprets its payload, it only needs identity matching and
// the outbound reference edges.
package entity

import (
	"fmt"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
)

// Type identifies the kind of configuration entity. The enumeration is
// closed: bundles carrying an unknown type fail schema validation at
// decode time rather than at apply time.
type Type string

const (
	Folder            Type = "FOLDER"
	Policy            Type = "POLICY"
	Service           Type = "SERVICE"
	IdentityProvider  Type = "IDENTITY_PROVIDER"
	ListenPort        Type = "LISTEN_PORT"
	RBACRole          Type = "RBAC_ROLE"
	AuditConfig       Type = "AUDIT_CONFIG"
	CustomKeyValue    Type = "CUSTOM_KEY_VALUE"
	EmailListener     Type = "EMAIL_LISTENER"
	FirewallRule      Type = "FIREWALL_RULE"
	HTTPConfiguration Type = "HTTP_CONFIGURATION"
	WorkQueue         Type = "WORK_QUEUE"
	PrivateKey        Type = "PRIVATE_KEY"
)

// Types returns all known entity types in canonical order. Exporters
// iterate this when asked for a whole-system closure, so the order here
// fixes the root visiting order of "all" exports.
func Types() []Type {
	return []Type{
		Folder,
		Policy,
		Service,
		IdentityProvider,
		ListenPort,
		RBACRole,
		AuditConfig,
		CustomKeyValue,
		EmailListener,
		FirewallRule,
		HTTPConfiguration,
		WorkQueue,
		PrivateKey,
	}
}

// Validate implements the closed enumeration check.
func (t Type) Validate() error {
	for _, known := range Types() {
		if t == known {
			return nil
		}
	}
	return errors.NotValidf("entity type %q", string(t))
}

// Ref names one entity by type and primary identity.
type Ref struct {
	Type Type
	Id   string
}

// Key returns the identity key used by visited sets and indexes. Ids
// are only unique per type on some systems, so the type is part of the
// key.
func (r Ref) Key() string {
	return fmt.Sprintf("%s:%s", r.Type, r.Id)
}

// Reference is a directed edge to another entity: the owner cannot be
// considered resolved on a target until the referenced entity is.
// Optional edges point at entities whose body may legitimately be
// unavailable at export time, such as a built-in identity provider
// that every installation already carries.
type Reference struct {
	Type     Type
	Id       string
	Optional bool
}

// Entity is an immutable snapshot of one configuration object.
type Entity interface {
	// Type returns the entity kind.
	Type() Type

	// Id returns the primary identity, immutable and globally unique
	// at the system that produced the snapshot.
	Id() string

	// Guid returns the stable secondary identity, or empty. Unlike the
	// primary id it survives re-creation on another system, so it is
	// usable for cross-system matching.
	Guid() string

	// Name returns the human readable name.
	Name() string

	// Payload returns the opaque body, nil for reference-only
	// entities.
	Payload() map[string]interface{}

	// HasPayload reports whether a body was retrievable for this
	// entity. Reference-only entities travel through a bundle as
	// mappings without a reference body.
	HasPayload() bool

	// References returns the outbound reference edges, with duplicate
	// edges already collapsed.
	References() []Reference

	// MatchesId reports an exact match on the primary identity.
	MatchesId(candidate string) bool

	// MatchesGuid reports an exact match on the secondary identity. An
	// entity without a secondary identity matches nothing.
	MatchesGuid(candidate string) bool

	// MatchesName reports an exact match on the name.
	MatchesName(candidate string) bool

	// WithReferences returns a copy of the snapshot with the reference
	// edges replaced. The receiver is not modified.
	WithReferences(refs []Reference) Entity

	// WithName returns a copy of the snapshot with the name replaced.
	// The receiver is not modified.
	WithName(name string) Entity
}

// EntityArgs is an argument struct used to create a new Entity
// snapshot.
type EntityArgs struct {
	Type       Type
	Id         string
	Guid       string
	Name       string
	Payload    map[string]interface{}
	References []Reference
}

type snapshot struct {
	type_      Type
	id         string
	guid       string
	name       string
	payload    map[string]interface{}
	references []Reference
}

// NewEntity returns an Entity snapshot for the given args. Duplicate
// reference edges collapse to one, keeping first-declared order.
func NewEntity(args EntityArgs) Entity {
	return &snapshot{
		type_:      args.Type,
		id:         args.Id,
		guid:       args.Guid,
		name:       args.Name,
		payload:    args.Payload,
		references: dedupeReferences(args.References),
	}
}

func dedupeReferences(refs []Reference) []Reference {
	if len(refs) == 0 {
		return nil
	}
	seen := set.NewStrings()
	result := make([]Reference, 0, len(refs))
	for _, ref := range refs {
		key := Ref{Type: ref.Type, Id: ref.Id}.Key()
		if seen.Contains(key) {
			continue
		}
		seen.Add(key)
		result = append(result, ref)
	}
	return result
}

// Type implements Entity.
func (s *snapshot) Type() Type {
	return s.type_
}

// Id implements Entity.
func (s *snapshot) Id() string {
	return s.id
}

// Guid implements Entity.
func (s *snapshot) Guid() string {
	return s.guid
}

// Name implements Entity.
func (s *snapshot) Name() string {
	return s.name
}

// Payload implements Entity.
func (s *snapshot) Payload() map[string]interface{} {
	return s.payload
}

// HasPayload implements Entity.
func (s *snapshot) HasPayload() bool {
	return s.payload != nil
}

// References implements Entity.
func (s *snapshot) References() []Reference {
	result := make([]Reference, len(s.references))
	copy(result, s.references)
	return result
}

// MatchesId implements Entity.
func (s *snapshot) MatchesId(candidate string) bool {
	return candidate != "" && s.id == candidate
}

// MatchesGuid implements Entity.
func (s *snapshot) MatchesGuid(candidate string) bool {
	return candidate != "" && s.guid == candidate
}

// MatchesName implements Entity.
func (s *snapshot) MatchesName(candidate string) bool {
	return candidate != "" && s.name == candidate
}

// WithReferences implements Entity.
func (s *snapshot) WithReferences(refs []Reference) Entity {
	result := *s
	result.references = dedupeReferences(refs)
	return &result
}

// WithName implements Entity.
func (s *snapshot) WithName(name string) Entity {
	result := *s
	result.name = name
	return &result
}

// Key returns the visited-set key for the snapshot.
func Key(e Entity) string {
	return Ref{Type: e.Type(), Id: e.Id()}.Key()
}
