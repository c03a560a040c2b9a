package schema

import (
	"reflect"
)

// DefaultCompositeDelimiter separates the prefix and the key of a composite
// property.
const DefaultCompositeDelimiter = "."

// PropertyDescriptor describes one scalar field of an entity and the graph
// property it is stored in.
type PropertyDescriptor struct {
	fieldName string
	graphName string
	typ       reflect.Type
	index     []int

	id            bool
	internalID    bool
	version       bool
	composite     bool
	prefix        string
	delimiter     string
	dynamicLabels bool
	vector        bool
	targetNode    bool
}

func (p *PropertyDescriptor) FieldName() string { return p.fieldName }

// GraphPropertyName is the name of the property on the node or relationship.
// Composite properties use it only as their default prefix.
func (p *PropertyDescriptor) GraphPropertyName() string { return p.graphName }

// Type is the Go type of the field. It is nil for schema-only entities.
func (p *PropertyDescriptor) Type() reflect.Type { return p.typ }

func (p *PropertyDescriptor) IsIDProperty() bool { return p.id }

// IsInternalIDProperty reports whether the field receives the database id.
// Such a field is never written as a graph property.
func (p *PropertyDescriptor) IsInternalIDProperty() bool { return p.internalID }

func (p *PropertyDescriptor) IsVersionProperty() bool { return p.version }
func (p *PropertyDescriptor) IsComposite() bool       { return p.composite }
func (p *PropertyDescriptor) CompositePrefix() string { return p.prefix }
func (p *PropertyDescriptor) CompositeDelimiter() string {
	return p.delimiter
}
func (p *PropertyDescriptor) IsDynamicLabels() bool { return p.dynamicLabels }
func (p *PropertyDescriptor) IsVector() bool        { return p.vector }

// IsTargetNode marks the field of a relationship-properties entity that holds
// the node at the other end of the edge.
func (p *PropertyDescriptor) IsTargetNode() bool { return p.targetNode }

// IsRelationship is always false; associations are RelationshipDescriptors.
func (p *PropertyDescriptor) IsRelationship() bool { return false }

// IsWritable reports whether the property is stored in the properties map of
// a save statement.
func (p *PropertyDescriptor) IsWritable() bool {
	return !p.internalID && !p.dynamicLabels && !p.targetNode && !p.version
}

// CompositeKey returns the graph property name used for key inside a
// composite property.
func (p *PropertyDescriptor) CompositeKey(key string) string {
	return p.prefix + p.delimiter + key
}

// Value returns the field of entity, which must be a pointer to (or a value
// of) the entity struct. The zero Value is returned for schema-only entities.
func (p *PropertyDescriptor) Value(entity reflect.Value) reflect.Value {
	return fieldOf(entity, p.index)
}

func (p *PropertyDescriptor) clone() *PropertyDescriptor {
	c := *p
	return &c
}

func fieldOf(entity reflect.Value, index []int) reflect.Value {
	if len(index) == 0 || !entity.IsValid() {
		return reflect.Value{}
	}
	for entity.Kind() == reflect.Ptr || entity.Kind() == reflect.Interface {
		if entity.IsNil() {
			return reflect.Value{}
		}
		entity = entity.Elem()
	}
	if entity.Kind() != reflect.Struct {
		return reflect.Value{}
	}
	f, err := entity.FieldByIndexErr(index)
	if err != nil {
		return reflect.Value{}
	}
	return f
}
