package schema

import (
	"reflect"
)

// EntityDescriptor describes one node type, or the properties of one
// relationship type when IsRelationshipPropertiesEntity is true.
//
// Descriptors are created by NewContext and never modified afterwards.
type EntityDescriptor struct {
	name             string
	typ              reflect.Type
	primaryLabel     string
	additionalLabels []string
	staticLabels     []string
	explicit         bool

	id            *IDDescriptor
	idProperty    *PropertyDescriptor
	version       *PropertyDescriptor
	dynamicLabels *PropertyDescriptor
	vector        *PropertyDescriptor
	targetNode    *PropertyDescriptor

	properties    []*PropertyDescriptor
	byField       map[string]*PropertyDescriptor
	byGraphName   map[string]*PropertyDescriptor
	relationships []*RelationshipDescriptor

	parent   *EntityDescriptor
	children []*EntityDescriptor

	relationshipProperties bool
	immutable              bool
	constructor            *Constructor
}

// Name is the definition name, by default the Go type name.
func (e *EntityDescriptor) Name() string { return e.name }

// Type is the struct type of the entity, nil for schema-only entities.
func (e *EntityDescriptor) Type() reflect.Type { return e.typ }

// HasType reports whether instances of the entity can be created.
func (e *EntityDescriptor) HasType() bool { return e.typ != nil }

func (e *EntityDescriptor) PrimaryLabel() string { return e.primaryLabel }

// AdditionalLabels returns the static labels other than the primary label,
// including the labels contributed by explicit ancestors.
func (e *EntityDescriptor) AdditionalLabels() []string {
	return append([]string(nil), e.staticLabels[1:]...)
}

// StaticLabels returns the primary label followed by the additional labels.
func (e *EntityDescriptor) StaticLabels() []string {
	return append([]string(nil), e.staticLabels...)
}

// IsExplicit reports whether the type was declared a node rather than merely
// discovered.
func (e *EntityDescriptor) IsExplicit() bool { return e.explicit }

// IDDescriptor is nil for entities without an id, such as projections.
func (e *EntityDescriptor) IDDescriptor() *IDDescriptor { return e.id }

func (e *EntityDescriptor) IDProperty() *PropertyDescriptor { return e.idProperty }

// IsUsingInternalIDs reports whether the database assigns the id.
func (e *EntityDescriptor) IsUsingInternalIDs() bool {
	return e.id != nil && e.id.IsInternallyGenerated()
}

func (e *EntityDescriptor) VersionProperty() *PropertyDescriptor { return e.version }
func (e *EntityDescriptor) HasVersionProperty() bool             { return e.version != nil }

func (e *EntityDescriptor) DynamicLabelsProperty() *PropertyDescriptor { return e.dynamicLabels }
func (e *EntityDescriptor) VectorProperty() *PropertyDescriptor        { return e.vector }
func (e *EntityDescriptor) TargetNodeProperty() *PropertyDescriptor    { return e.targetNode }

// Properties returns the scalar properties of the entity including the
// inherited ones.
func (e *EntityDescriptor) Properties() []*PropertyDescriptor {
	return append([]*PropertyDescriptor(nil), e.properties...)
}

// Property looks up a property by field name.
func (e *EntityDescriptor) Property(field string) (*PropertyDescriptor, bool) {
	p, ok := e.byField[field]
	return p, ok
}

// PropertyByGraphName looks up a property by the name it has in the graph.
func (e *EntityDescriptor) PropertyByGraphName(name string) (*PropertyDescriptor, bool) {
	p, ok := e.byGraphName[name]
	return p, ok
}

// Relationships returns the relationships of the entity including the
// inherited ones.
func (e *EntityDescriptor) Relationships() []*RelationshipDescriptor {
	return append([]*RelationshipDescriptor(nil), e.relationships...)
}

// Relationship looks up a relationship by field name.
func (e *EntityDescriptor) Relationship(field string) (*RelationshipDescriptor, bool) {
	for _, r := range e.relationships {
		if r.fieldName == field {
			return r, true
		}
	}
	return nil, false
}

func (e *EntityDescriptor) Parent() *EntityDescriptor { return e.parent }

func (e *EntityDescriptor) Children() []*EntityDescriptor {
	return append([]*EntityDescriptor(nil), e.children...)
}

// IsAncestorOf reports whether other extends e, directly or transitively.
func (e *EntityDescriptor) IsAncestorOf(other *EntityDescriptor) bool {
	for p := other.parent; p != nil; p = p.parent {
		if p == e {
			return true
		}
	}
	return false
}

// ChildrenInHierarchy returns every descendant in depth-first order.
func (e *EntityDescriptor) ChildrenInHierarchy() []*EntityDescriptor {
	var out []*EntityDescriptor
	for _, c := range e.children {
		out = append(out, c)
		out = append(out, c.ChildrenInHierarchy()...)
	}
	return out
}

// HierarchyLabels returns the static labels of e and of all its descendants,
// without duplicates.
func (e *EntityDescriptor) HierarchyLabels() []string {
	seen := map[string]bool{}
	var out []string
	for _, d := range append([]*EntityDescriptor{e}, e.ChildrenInHierarchy()...) {
		for _, l := range d.staticLabels {
			if !seen[l] {
				seen[l] = true
				out = append(out, l)
			}
		}
	}
	return out
}

// PropertiesInHierarchy returns the properties of e and of its descendants,
// deduplicated by graph name.
func (e *EntityDescriptor) PropertiesInHierarchy() []*PropertyDescriptor {
	seen := map[string]bool{}
	var out []*PropertyDescriptor
	for _, d := range append([]*EntityDescriptor{e}, e.ChildrenInHierarchy()...) {
		for _, p := range d.properties {
			key := p.graphName
			if p.composite {
				key = p.prefix + p.delimiter
			}
			if !seen[key] {
				seen[key] = true
				out = append(out, p)
			}
		}
	}
	return out
}

// RelationshipsInHierarchy returns the relationships of e and its
// descendants accepted by filter, deduplicated by field name.
func (e *EntityDescriptor) RelationshipsInHierarchy(filter PropertyFilter) []*RelationshipDescriptor {
	seen := map[string]bool{}
	var out []*RelationshipDescriptor
	for _, d := range append([]*EntityDescriptor{e}, e.ChildrenInHierarchy()...) {
		for _, r := range d.relationships {
			if seen[r.fieldName] || !filter.Contains(r.fieldName) {
				continue
			}
			seen[r.fieldName] = true
			out = append(out, r)
		}
	}
	return out
}

func (e *EntityDescriptor) IsRelationshipPropertiesEntity() bool { return e.relationshipProperties }

// IsImmutable reports whether instances must be copied instead of mutated.
func (e *EntityDescriptor) IsImmutable() bool { return e.immutable }

func (e *EntityDescriptor) Constructor() *Constructor { return e.constructor }

// New returns a pointer to a fresh zero instance, or an invalid Value for
// schema-only entities.
func (e *EntityDescriptor) New() reflect.Value {
	if e.typ == nil {
		return reflect.Value{}
	}
	return reflect.New(e.typ)
}

// Owns reports whether v is a pointer to an instance of the entity.
func (e *EntityDescriptor) Owns(v reflect.Value) bool {
	return e.typ != nil && v.IsValid() && v.Kind() == reflect.Ptr && v.Type().Elem() == e.typ
}

// IDValue returns the domain id of entity: the id field for assigned and
// external ids, the internal id field otherwise.
func (e *EntityDescriptor) IDValue(entity reflect.Value) (any, bool) {
	if e.idProperty == nil {
		return nil, false
	}
	f := e.idProperty.Value(entity)
	if !f.IsValid() || f.IsZero() {
		return nil, false
	}
	if f.Kind() == reflect.Ptr {
		f = f.Elem()
	}
	return f.Interface(), true
}

// IsNew reports whether entity has not been saved yet, judged by its version
// when the entity is versioned and by its id otherwise.
func (e *EntityDescriptor) IsNew(entity reflect.Value) bool {
	if e.version != nil {
		if f := e.version.Value(entity); f.IsValid() {
			return f.IsZero()
		}
	}
	if e.id != nil && e.id.IsAssigned() {
		return false
	}
	_, ok := e.IDValue(entity)
	return !ok
}

func (e *EntityDescriptor) String() string { return e.name }
