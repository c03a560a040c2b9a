package schema

import (
	"fmt"
	"reflect"
	"strings"
)

// Direction of a relationship seen from the entity that declares it.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
)

func (d Direction) String() string {
	if d == Incoming {
		return "INCOMING"
	}
	return "OUTGOING"
}

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == Incoming {
		return Outgoing
	}
	return Incoming
}

// ParseDirection accepts out, outgoing, in and incoming in any case. The
// empty string means outgoing.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "", "out", "outgoing":
		return Outgoing, nil
	case "in", "incoming":
		return Incoming, nil
	}
	return Outgoing, fmt.Errorf("unknown relationship direction %q", s)
}

// Shape is the runtime layout of a relationship field.
type Shape int

const (
	// ShapeScalar is a single related entity.
	ShapeScalar Shape = iota
	// ShapeList is a slice of related entities.
	ShapeList
	// ShapeDynamicMap maps relationship types to related entities.
	ShapeDynamicMap
	// ShapePropertiesList holds relationship-properties entities, one per edge.
	ShapePropertiesList
	// ShapePropertiesMap maps relationship types to relationship-properties
	// entities.
	ShapePropertiesMap
)

func (s Shape) String() string {
	switch s {
	case ShapeScalar:
		return "scalar"
	case ShapeList:
		return "list"
	case ShapeDynamicMap:
		return "dynamic map"
	case ShapePropertiesList:
		return "properties list"
	case ShapePropertiesMap:
		return "properties map"
	}
	return "unknown"
}

// RelationshipDescriptor describes an association from a source entity to a
// target entity.
type RelationshipDescriptor struct {
	fieldName string
	typ       string
	dynamic   bool
	direction Direction

	source           *EntityDescriptor
	target           *EntityDescriptor
	propertiesEntity *EntityDescriptor
	obverse          *RelationshipDescriptor

	cascade   bool
	many      bool
	fieldType reflect.Type
	index     []int
}

func (r *RelationshipDescriptor) FieldName() string { return r.fieldName }

// Type is the relationship type. It is empty for dynamic relationships.
func (r *RelationshipDescriptor) Type() string { return r.typ }

func (r *RelationshipDescriptor) IsDynamic() bool      { return r.dynamic }
func (r *RelationshipDescriptor) Direction() Direction { return r.direction }
func (r *RelationshipDescriptor) IsOutgoing() bool     { return r.direction == Outgoing }
func (r *RelationshipDescriptor) IsIncoming() bool     { return r.direction == Incoming }

func (r *RelationshipDescriptor) Source() *EntityDescriptor { return r.source }
func (r *RelationshipDescriptor) Target() *EntityDescriptor { return r.target }

// RelationshipPropertiesEntity describes the data stored on the edge, or nil.
func (r *RelationshipDescriptor) RelationshipPropertiesEntity() *EntityDescriptor {
	return r.propertiesEntity
}

func (r *RelationshipDescriptor) HasRelationshipProperties() bool {
	return r.propertiesEntity != nil
}

// Obverse returns the relationship declared on the target that walks the same
// edges in the other direction, or nil.
func (r *RelationshipDescriptor) Obverse() *RelationshipDescriptor { return r.obverse }
func (r *RelationshipDescriptor) HasObverse() bool                 { return r.obverse != nil }

// CascadesUpdates reports whether saving the source also saves the targets.
func (r *RelationshipDescriptor) CascadesUpdates() bool { return r.cascade }

// IsCollection reports whether the field holds several entities per type.
func (r *RelationshipDescriptor) IsCollection() bool { return r.many }

func (r *RelationshipDescriptor) FieldType() reflect.Type { return r.fieldType }

// Shape returns the tagged-union variant of the field.
func (r *RelationshipDescriptor) Shape() Shape {
	switch {
	case r.dynamic && r.propertiesEntity != nil:
		return ShapePropertiesMap
	case r.dynamic:
		return ShapeDynamicMap
	case r.propertiesEntity != nil:
		return ShapePropertiesList
	case r.many:
		return ShapeList
	}
	return ShapeScalar
}

// TypeOrFieldName returns the relationship type, or the field name for
// dynamic relationships.
func (r *RelationshipDescriptor) TypeOrFieldName() string {
	if r.dynamic {
		return r.fieldName
	}
	return r.typ
}

// IsInverseOf reports whether other walks the same edges as r from the other
// end: same type (field name when dynamic), swapped endpoints and opposite
// direction.
func (r *RelationshipDescriptor) IsInverseOf(other *RelationshipDescriptor) bool {
	if other == nil || other == r {
		return false
	}
	if r.dynamic != other.dynamic || r.TypeOrFieldName() != other.TypeOrFieldName() {
		return false
	}
	if r.direction != other.direction.Opposite() {
		return false
	}
	return sameHierarchy(r.source, other.target) && sameHierarchy(r.target, other.source)
}

// RelatedNodesCollectionName is the key under which generated map
// projections return the related entities of this relationship.
func (r *RelationshipDescriptor) RelatedNodesCollectionName() string {
	return r.source.PrimaryLabel() + "_" + r.fieldName + "_" + r.target.PrimaryLabel()
}

// Value returns the relationship field of entity.
func (r *RelationshipDescriptor) Value(entity reflect.Value) reflect.Value {
	return fieldOf(entity, r.index)
}

func (r *RelationshipDescriptor) String() string {
	arrow := "->"
	if r.direction == Incoming {
		arrow = "<-"
	}
	src, dst := "?", "?"
	if r.source != nil {
		src = r.source.Name()
	}
	if r.target != nil {
		dst = r.target.Name()
	}
	return fmt.Sprintf("%s.%s %s[%s]%s", src, r.fieldName, arrow, r.TypeOrFieldName(), dst)
}

func (r *RelationshipDescriptor) clone() *RelationshipDescriptor {
	c := *r
	c.obverse = nil
	return &c
}

func sameHierarchy(a, b *EntityDescriptor) bool {
	if a == nil || b == nil {
		return false
	}
	return a == b || a.IsAncestorOf(b) || b.IsAncestorOf(a)
}

// RelationshipTypeFromField derives the default relationship type of a field:
// its name in upper snake case.
func RelationshipTypeFromField(field string) string {
	var b strings.Builder
	runes := []rune(field)
	for i, c := range runes {
		upper := c >= 'A' && c <= 'Z'
		if i > 0 && upper {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z' || runes[i-1] >= '0' && runes[i-1] <= '9'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			prevUpper := runes[i-1] >= 'A' && runes[i-1] <= 'Z'
			if prevLower || (prevUpper && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteString(strings.ToUpper(string(c)))
	}
	return b.String()
}
