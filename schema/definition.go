package schema

import (
	"reflect"
)

// NodeDefinition is the declarative source of one EntityDescriptor. It is the
// common currency of struct-tag discovery, YAML schema files and hand-written
// registrations.
type NodeDefinition struct {
	// Name identifies the definition. It defaults to the Go type name and is
	// the fallback primary label.
	Name string `yaml:"name"`

	// Type is the Go struct type backing the entity. Definitions loaded from
	// schema files may leave it nil; such descriptors can generate statements
	// but cannot map records.
	Type reflect.Type `yaml:"-"`

	// PrimaryLabel wins over Labels[0] when both are set.
	PrimaryLabel string   `yaml:"primaryLabel,omitempty"`
	Labels       []string `yaml:"labels,omitempty"`

	// Explicit marks a definition that was explicitly tagged as a node. Only
	// explicit ancestors contribute labels, and only explicit definitions
	// must carry an id. Nil means true.
	Explicit *bool `yaml:"explicit,omitempty"`

	// Parent names the definition this one extends.
	Parent string `yaml:"parent,omitempty"`

	// RelationshipProperties marks an entity that describes the properties of
	// an edge rather than a node.
	RelationshipProperties bool `yaml:"relationshipProperties,omitempty"`

	// Immutable entities are never mutated after construction; populating
	// them produces a copy.
	Immutable bool `yaml:"immutable,omitempty"`

	Properties    []PropertyDefinition     `yaml:"properties,omitempty"`
	Relationships []RelationshipDefinition `yaml:"relationships,omitempty"`

	// Constructor, when set, is used instead of reflect.New to instantiate
	// the entity while reading.
	Constructor *Constructor `yaml:"-"`
}

// PropertyDefinition describes a scalar (non-relationship) field.
type PropertyDefinition struct {
	Field    string `yaml:"field"`
	Property string `yaml:"property,omitempty"`

	// TypeName documents the value type for schema-only definitions.
	TypeName string       `yaml:"type,omitempty"`
	Type     reflect.Type `yaml:"-"`

	ID bool `yaml:"id,omitempty"`
	// Generated selects the id strategy: empty for assigned ids, "internal"
	// for database generated ids, anything else names an IDGenerator.
	Generated string `yaml:"generated,omitempty"`

	Version       bool   `yaml:"version,omitempty"`
	Composite     bool   `yaml:"composite,omitempty"`
	Prefix        string `yaml:"prefix,omitempty"`
	Delimiter     string `yaml:"delimiter,omitempty"`
	DynamicLabels bool   `yaml:"dynamicLabels,omitempty"`
	Vector        bool   `yaml:"vector,omitempty"`
	TargetNode    bool   `yaml:"targetNode,omitempty"`
}

// RelationshipDefinition describes an association to another entity.
type RelationshipDefinition struct {
	Field string `yaml:"field"`
	// Type is the relationship type. It must be empty for dynamic
	// relationships, whose type comes from the map key.
	Type      string `yaml:"type,omitempty"`
	Dynamic   bool   `yaml:"dynamic,omitempty"`
	Direction string `yaml:"direction,omitempty"`

	// Target names the target definition. For relationships with properties
	// it may be left empty; the target is then taken from the target node
	// field of the properties entity.
	Target string `yaml:"target,omitempty"`
	// Properties names a relationship-properties definition.
	Properties string `yaml:"properties,omitempty"`

	// Many marks a collection-valued relationship for schema-only
	// definitions. It is derived from the field type otherwise.
	Many bool `yaml:"many,omitempty"`

	// Cascade controls whether related entities are saved along with the
	// owner. Nil means true.
	Cascade *bool `yaml:"cascade,omitempty"`

	// FieldType documents the field type for definitions without a Go type.
	FieldType reflect.Type `yaml:"-"`
}

// Constructor instantiates an entity from a set of named arguments. The
// arguments are keyed by field name and already converted to the field type.
type Constructor struct {
	Parameters []string
	New        func(args map[string]any) (any, error)
}

// IsParameter reports whether fieldName is supplied through the constructor.
func (c *Constructor) IsParameter(fieldName string) bool {
	if c == nil {
		return false
	}
	for _, p := range c.Parameters {
		if p == fieldName {
			return true
		}
	}
	return false
}

func (d *NodeDefinition) isExplicit() bool {
	return d.Explicit == nil || *d.Explicit
}

func (r *RelationshipDefinition) cascades() bool {
	return r.Cascade == nil || *r.Cascade
}

// Bool returns a pointer to b, for the optional flags of definitions.
func Bool(b bool) *bool {
	return &b
}
