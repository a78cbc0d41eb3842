// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package export_test

import (
	"context"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	jujutesting "github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/configbundle/core/bundle"
	"github.com/juju/configbundle/core/entity"
	migrationerrors "github.com/juju/configbundle/migration/errors"
	"github.com/juju/configbundle/migration/export"
	"github.com/juju/configbundle/store/memstore"
)

type ExportSuite struct {
	jujutesting.IsolationSuite

	source   *memstore.Store
	exporter *export.Exporter
	now      time.Time
}

var _ = gc.Suite(&ExportSuite{})

func (s *ExportSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.source = memstore.New()
	s.now = time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)
	s.exporter = export.NewExporter(s.source, testclock.NewClock(s.now))
}

func (s *ExportSuite) add(t entity.Type, id, name string, refs ...entity.Reference) {
	s.source.Add(entity.NewEntity(entity.EntityArgs{
		Type:       t,
		Id:         id,
		Name:       name,
		Payload:    map[string]interface{}{"name": name},
		References: refs,
	}))
}

// addAuditFixture lays out an audit configuration referencing a sink
// policy and a lookup policy, both living in a folder, with the lookup
// policy pointing at a built-in identity provider that carries no
// body.
func (s *ExportSuite) addAuditFixture(c *gc.C) {
	s.add(entity.Folder, "f-1", "transfer")
	s.add(entity.Policy, "p-sink", "audit sink",
		entity.Reference{Type: entity.Folder, Id: "f-1"})
	s.add(entity.Policy, "p-lookup", "audit lookup",
		entity.Reference{Type: entity.Folder, Id: "f-1"},
		entity.Reference{Type: entity.IdentityProvider, Id: "idp-1", Optional: true})
	s.add(entity.AuditConfig, "a-1", "audit configuration",
		entity.Reference{Type: entity.Policy, Id: "p-sink"},
		entity.Reference{Type: entity.Policy, Id: "p-lookup"})
}

func mappingIds(b bundle.Bundle) []string {
	var result []string
	for _, m := range b.Mappings() {
		result = append(result, m.SourceId())
	}
	return result
}

func (s *ExportSuite) TestSingleEntityNoDependencies(c *gc.C) {
	s.add(entity.RBACRole, "r-1", "operator")
	b, err := s.exporter.Export(context.Background(), export.Args{
		Roots:  []entity.Ref{{Type: entity.RBACRole, Id: "r-1"}},
		Source: "https://src.example/restman",
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(b.ExportedAt(), gc.Equals, s.now)
	c.Assert(b.References(), gc.HasLen, 1)
	mappings := b.Mappings()
	c.Assert(mappings, gc.HasLen, 1)
	c.Check(mappings[0].Type(), gc.Equals, entity.RBACRole)
	c.Check(mappings[0].SourceId(), gc.Equals, "r-1")
	c.Check(mappings[0].Action(), gc.Equals, bundle.NewOrExisting)
	c.Check(mappings[0].SourceURI(), gc.Equals, "https://src.example/restman/rbac_role/r-1")
}

func (s *ExportSuite) TestAuditConfigurationClosure(c *gc.C) {
	s.addAuditFixture(c)
	b, err := s.exporter.Export(context.Background(), export.Args{
		Roots: []entity.Ref{{Type: entity.AuditConfig, Id: "a-1"}},
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(b.References(), gc.HasLen, 4)
	c.Check(mappingIds(b), jc.DeepEquals, []string{
		"f-1", "p-sink", "idp-1", "p-lookup", "a-1",
	})
	byType := make(map[entity.Type]int)
	for _, m := range b.Mappings() {
		byType[m.Type()]++
	}
	c.Check(byType, jc.DeepEquals, map[entity.Type]int{
		entity.Folder:           1,
		entity.Policy:           2,
		entity.IdentityProvider: 1,
		entity.AuditConfig:      1,
	})
	// The identity provider is reference-only: it has a mapping but no
	// body in the bundle.
	_, ok := b.Reference("idp-1")
	c.Check(ok, jc.IsFalse)
	c.Check(b.Validate(), jc.ErrorIsNil)
}

func (s *ExportSuite) TestDependencyFirstOrder(c *gc.C) {
	s.addAuditFixture(c)
	b, err := s.exporter.Export(context.Background(), export.Args{
		Roots: []entity.Ref{{Type: entity.AuditConfig, Id: "a-1"}},
	})
	c.Assert(err, jc.ErrorIsNil)
	index := make(map[string]int)
	for i, m := range b.Mappings() {
		index[m.SourceId()] = i
	}
	for _, e := range b.References() {
		for _, ref := range e.References() {
			c.Check(index[ref.Id] < index[e.Id()], jc.IsTrue,
				gc.Commentf("%s depends on %s", e.Id(), ref.Id))
		}
	}
}

func (s *ExportSuite) TestSharedDependencyCollapses(c *gc.C) {
	s.add(entity.Policy, "p-1", "shared include")
	s.add(entity.Service, "s-1", "front",
		entity.Reference{Type: entity.Policy, Id: "p-1"})
	s.add(entity.Service, "s-2", "back",
		entity.Reference{Type: entity.Policy, Id: "p-1"})
	b, err := s.exporter.Export(context.Background(), export.Args{
		Roots: []entity.Ref{
			{Type: entity.Service, Id: "s-1"},
			{Type: entity.Service, Id: "s-2"},
		},
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(mappingIds(b), jc.DeepEquals, []string{"p-1", "s-1", "s-2"})
}

func (s *ExportSuite) TestCycleTerminates(c *gc.C) {
	s.add(entity.Policy, "p-a", "a",
		entity.Reference{Type: entity.Policy, Id: "p-b"})
	s.add(entity.Policy, "p-b", "b",
		entity.Reference{Type: entity.Policy, Id: "p-a"})
	b, err := s.exporter.Export(context.Background(), export.Args{
		Roots: []entity.Ref{{Type: entity.Policy, Id: "p-a"}},
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(mappingIds(b), jc.DeepEquals, []string{"p-b", "p-a"})
}

func (s *ExportSuite) TestTypeScopedRoots(c *gc.C) {
	s.add(entity.RBACRole, "r-2", "auditor")
	s.add(entity.RBACRole, "r-1", "operator")
	s.add(entity.Policy, "p-1", "unrelated")
	b, err := s.exporter.Export(context.Background(), export.Args{
		Types: []entity.Type{entity.RBACRole},
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(mappingIds(b), jc.DeepEquals, []string{"r-1", "r-2"})
}

func (s *ExportSuite) TestAllRoots(c *gc.C) {
	s.add(entity.RBACRole, "r-1", "operator")
	s.add(entity.Policy, "p-1", "loose")
	b, err := s.exporter.Export(context.Background(), export.Args{All: true})
	c.Assert(err, jc.ErrorIsNil)
	// Types() order puts policies before roles.
	c.Check(mappingIds(b), jc.DeepEquals, []string{"p-1", "r-1"})
}

func (s *ExportSuite) TestNoSelector(c *gc.C) {
	_, err := s.exporter.Export(context.Background(), export.Args{})
	c.Check(err, gc.ErrorMatches, "export without roots not valid")
}

func (s *ExportSuite) TestMissingRoot(c *gc.C) {
	_, err := s.exporter.Export(context.Background(), export.Args{
		Roots: []entity.Ref{{Type: entity.Folder, Id: "f-9"}},
	})
	c.Check(err, jc.Satisfies, errors.IsNotFound)
}

func (s *ExportSuite) TestMissingDependency(c *gc.C) {
	s.add(entity.Service, "s-1", "front",
		entity.Reference{Type: entity.Policy, Id: "p-9"})
	_, err := s.exporter.Export(context.Background(), export.Args{
		Roots: []entity.Ref{{Type: entity.Service, Id: "s-1"}},
	})
	c.Check(err, jc.ErrorIs, migrationerrors.Unresolvable)
	c.Check(err, gc.ErrorMatches, `dependency POLICY "p-9" of SERVICE "s-1": unresolvable`)
}

func (s *ExportSuite) TestMissingOptionalDependency(c *gc.C) {
	s.add(entity.Policy, "p-1", "lookup",
		entity.Reference{Type: entity.IdentityProvider, Id: "idp-1", Optional: true})
	b, err := s.exporter.Export(context.Background(), export.Args{
		Roots: []entity.Ref{{Type: entity.Policy, Id: "p-1"}},
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(mappingIds(b), jc.DeepEquals, []string{"idp-1", "p-1"})
	c.Check(b.References(), gc.HasLen, 1)
}

func (s *ExportSuite) TestRequiredRootMarksDependencies(c *gc.C) {
	s.add(entity.Folder, "f-1", "transfer")
	s.add(entity.Policy, "p-1", "include",
		entity.Reference{Type: entity.Folder, Id: "f-1"})
	s.add(entity.Service, "s-1", "front",
		entity.Reference{Type: entity.Policy, Id: "p-1"})
	b, err := s.exporter.Export(context.Background(), export.Args{
		Roots:    []entity.Ref{{Type: entity.Service, Id: "s-1"}},
		Required: []entity.Ref{{Type: entity.Service, Id: "s-1"}},
	})
	c.Assert(err, jc.ErrorIsNil)
	failOnNew := make(map[string]bool)
	for _, m := range b.Mappings() {
		failOnNew[m.SourceId()] = m.Config().FailOnNew
	}
	c.Check(failOnNew, jc.DeepEquals, map[string]bool{
		"f-1": true,
		"p-1": true,
		"s-1": false,
	})
}

func (s *ExportSuite) TestDefaultActionOverride(c *gc.C) {
	s.addAuditFixture(c)
	b, err := s.exporter.Export(context.Background(), export.Args{
		Roots: []entity.Ref{{Type: entity.AuditConfig, Id: "a-1"}},
		DefaultActions: map[entity.Type]bundle.Action{
			entity.AuditConfig: bundle.NewOrUpdate,
		},
	})
	c.Assert(err, jc.ErrorIsNil)
	actions := make(map[string]bundle.Action)
	for _, m := range b.Mappings() {
		actions[m.SourceId()] = m.Action()
	}
	c.Check(actions["a-1"], gc.Equals, bundle.NewOrUpdate)
	c.Check(actions["p-sink"], gc.Equals, bundle.NewOrExisting)
}

func (s *ExportSuite) TestDefaultActionOverrideValidated(c *gc.C) {
	_, err := s.exporter.Export(context.Background(), export.Args{
		All: true,
		DefaultActions: map[entity.Type]bundle.Action{
			entity.Policy: bundle.Action("Merge"),
		},
	})
	c.Check(err, gc.ErrorMatches, `action "Merge" not valid`)
}
