// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package bundle

import (
	"time"

	"github.com/juju/errors"
	"github.com/juju/schema"
	"gopkg.in/yaml.v2"

	"github.com/juju/configbundle/core/entity"
)

const serializationVersion = 1

type serializedBundle struct {
	Version    int                 `yaml:"version"`
	ExportedAt string              `yaml:"exported-at"`
	References []serializedEntity  `yaml:"references"`
	Mappings   []serializedMapping `yaml:"mappings"`
}

type serializedEntity struct {
	Type       string                 `yaml:"type"`
	Id         string                 `yaml:"id"`
	Guid       string                 `yaml:"guid,omitempty"`
	Name       string                 `yaml:"name,omitempty"`
	Payload    map[string]interface{} `yaml:"payload"`
	References []serializedReference  `yaml:"references,omitempty"`
}

type serializedReference struct {
	Type     string `yaml:"type"`
	Id       string `yaml:"id"`
	Optional bool   `yaml:"optional,omitempty"`
}

type serializedMapping struct {
	Type           string `yaml:"type"`
	SourceId       string `yaml:"source-id"`
	SourceURI      string `yaml:"source-uri,omitempty"`
	Action         string `yaml:"action"`
	ActionTaken    string `yaml:"action-taken,omitempty"`
	TargetId       string `yaml:"target-id,omitempty"`
	FailOnNew      bool   `yaml:"fail-on-new,omitempty"`
	FailOnExisting bool   `yaml:"fail-on-existing,omitempty"`
	MapBy          string `yaml:"map-by,omitempty"`
	MapTo          string `yaml:"map-to,omitempty"`
}

// Serialize encodes the bundle. Both sequences keep their order
// exactly, since the order carries the dependency-first guarantee.
func Serialize(b Bundle) ([]byte, error) {
	doc := serializedBundle{
		Version:    serializationVersion,
		ExportedAt: b.ExportedAt().UTC().Format(time.RFC3339Nano),
	}
	for _, e := range b.References() {
		se := serializedEntity{
			Type:    string(e.Type()),
			Id:      e.Id(),
			Guid:    e.Guid(),
			Name:    e.Name(),
			Payload: e.Payload(),
		}
		for _, ref := range e.References() {
			se.References = append(se.References, serializedReference{
				Type:     string(ref.Type),
				Id:       ref.Id,
				Optional: ref.Optional,
			})
		}
		doc.References = append(doc.References, se)
	}
	for _, m := range b.Mappings() {
		config := m.Config()
		doc.Mappings = append(doc.Mappings, serializedMapping{
			Type:           string(m.Type()),
			SourceId:       m.SourceId(),
			SourceURI:      m.SourceURI(),
			Action:         string(m.Action()),
			ActionTaken:    string(m.ActionTaken()),
			TargetId:       m.TargetId(),
			FailOnNew:      config.FailOnNew,
			FailOnExisting: config.FailOnExisting,
			MapBy:          string(config.MapBy),
			MapTo:          config.MapTo,
		})
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return data, nil
}

// Deserialize decodes a bundle produced by Serialize, schema checking
// the document before reconstruction so malformed input fails here and
// not during an import.
func Deserialize(data []byte) (Bundle, error) {
	var source map[string]interface{}
	if err := yaml.Unmarshal(data, &source); err != nil {
		return nil, errors.Trace(err)
	}
	fields := schema.Fields{
		"version":     schema.Int(),
		"exported-at": schema.String(),
		"references":  schema.List(schema.StringMap(schema.Any())),
		"mappings":    schema.List(schema.StringMap(schema.Any())),
	}
	defaults := schema.Defaults{
		"references": schema.Omit,
		"mappings":   schema.Omit,
	}
	coerced, err := schema.FieldMap(fields, defaults).Coerce(source, nil)
	if err != nil {
		return nil, errors.Annotate(err, "bundle schema check failed")
	}
	valid := coerced.(map[string]interface{})

	version := int(valid["version"].(int64))
	if version != serializationVersion {
		return nil, errors.NotValidf("bundle version %d", version)
	}
	exportedAt, err := time.Parse(time.RFC3339Nano, valid["exported-at"].(string))
	if err != nil {
		return nil, errors.Annotate(err, "parsing exported-at")
	}

	result := New(Args{ExportedAt: exportedAt})
	if raw, ok := valid["references"]; ok {
		if err := importReferences(result, raw.([]interface{})); err != nil {
			return nil, errors.Trace(err)
		}
	}
	if raw, ok := valid["mappings"]; ok {
		if err := importMappings(result, raw.([]interface{})); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return result, nil
}

func importReferences(b Bundle, sourceList []interface{}) error {
	fields := schema.Fields{
		"type":       schema.String(),
		"id":         schema.String(),
		"guid":       schema.String(),
		"name":       schema.String(),
		"payload":    schema.StringMap(schema.Any()),
		"references": schema.List(schema.StringMap(schema.Any())),
	}
	defaults := schema.Defaults{
		"guid":       "",
		"name":       "",
		"references": schema.Omit,
	}
	checker := schema.FieldMap(fields, defaults)
	for i, value := range sourceList {
		coerced, err := checker.Coerce(value, nil)
		if err != nil {
			return errors.Annotatef(err, "reference %d schema check failed", i)
		}
		valid := coerced.(map[string]interface{})
		entityType := entity.Type(valid["type"].(string))
		if err := entityType.Validate(); err != nil {
			return errors.Annotatef(err, "reference %d", i)
		}
		var refs []entity.Reference
		if raw, ok := valid["references"]; ok {
			refs, err = importReferenceEdges(raw.([]interface{}))
			if err != nil {
				return errors.Annotatef(err, "reference %d", i)
			}
		}
		err = b.AddReference(entity.NewEntity(entity.EntityArgs{
			Type:       entityType,
			Id:         valid["id"].(string),
			Guid:       valid["guid"].(string),
			Name:       valid["name"].(string),
			Payload:    valid["payload"].(map[string]interface{}),
			References: refs,
		}))
		if err != nil {
			return errors.Annotatef(err, "reference %d", i)
		}
	}
	return nil
}

func importReferenceEdges(sourceList []interface{}) ([]entity.Reference, error) {
	fields := schema.Fields{
		"type":     schema.String(),
		"id":       schema.String(),
		"optional": schema.Bool(),
	}
	defaults := schema.Defaults{
		"optional": false,
	}
	checker := schema.FieldMap(fields, defaults)
	result := make([]entity.Reference, 0, len(sourceList))
	for i, value := range sourceList {
		coerced, err := checker.Coerce(value, nil)
		if err != nil {
			return nil, errors.Annotatef(err, "edge %d schema check failed", i)
		}
		valid := coerced.(map[string]interface{})
		refType := entity.Type(valid["type"].(string))
		if err := refType.Validate(); err != nil {
			return nil, errors.Annotatef(err, "edge %d", i)
		}
		result = append(result, entity.Reference{
			Type:     refType,
			Id:       valid["id"].(string),
			Optional: valid["optional"].(bool),
		})
	}
	return result, nil
}

func importMappings(b Bundle, sourceList []interface{}) error {
	fields := schema.Fields{
		"type":             schema.String(),
		"source-id":        schema.String(),
		"source-uri":       schema.String(),
		"action":           schema.String(),
		"action-taken":     schema.String(),
		"target-id":        schema.String(),
		"fail-on-new":      schema.Bool(),
		"fail-on-existing": schema.Bool(),
		"map-by":           schema.String(),
		"map-to":           schema.String(),
	}
	defaults := schema.Defaults{
		"source-uri":       "",
		"action-taken":     "",
		"target-id":        "",
		"fail-on-new":      false,
		"fail-on-existing": false,
		"map-by":           "",
		"map-to":           "",
	}
	checker := schema.FieldMap(fields, defaults)
	for i, value := range sourceList {
		coerced, err := checker.Coerce(value, nil)
		if err != nil {
			return errors.Annotatef(err, "mapping %d schema check failed", i)
		}
		valid := coerced.(map[string]interface{})
		m, err := b.AddMapping(MappingArgs{
			Type:      entity.Type(valid["type"].(string)),
			SourceId:  valid["source-id"].(string),
			SourceURI: valid["source-uri"].(string),
			Action:    Action(valid["action"].(string)),
			Config: MappingConfig{
				FailOnNew:      valid["fail-on-new"].(bool),
				FailOnExisting: valid["fail-on-existing"].(bool),
				MapBy:          MatchStrategy(valid["map-by"].(string)),
				MapTo:          valid["map-to"].(string),
			},
		})
		if err != nil {
			return errors.Annotatef(err, "mapping %d", i)
		}
		if taken := valid["action-taken"].(string); taken != "" {
			if err := m.SetResult(ActionTaken(taken), valid["target-id"].(string)); err != nil {
				return errors.Annotatef(err, "mapping %d", i)
			}
		}
	}
	return nil
}
