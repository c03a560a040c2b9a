package mapping

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/saulfrancisco-ruizacevedo/go-neoogm/schema"
)

// RelatedValue is the content of a relationship field. It is one of Scalar,
// List, DynamicMap, PropertiesList and PropertiesMap, matching the Shape of
// the relationship.
type RelatedValue interface {
	relatedValue()
}

// Scalar is a single related entity. Entity is invalid when the field is nil.
type Scalar struct {
	Entity reflect.Value
}

// List holds the related entities of a collection field.
type List struct {
	Entities []reflect.Value
}

// DynamicMap holds related entities keyed by relationship type.
type DynamicMap struct {
	Entities map[string][]reflect.Value
}

// PropertiesList holds relationship-properties instances, each pointing at
// its target node.
type PropertiesList struct {
	Relationships []reflect.Value
}

// PropertiesMap holds relationship-properties instances keyed by
// relationship type.
type PropertiesMap struct {
	Relationships map[string][]reflect.Value
}

func (Scalar) relatedValue()         {}
func (List) relatedValue()           {}
func (DynamicMap) relatedValue()     {}
func (PropertiesList) relatedValue() {}
func (PropertiesMap) relatedValue()  {}

// RelatedEntity is one edge described by a relationship field.
type RelatedEntity struct {
	// Type is the relationship type of the edge.
	Type string
	// Entity points at the related node entity.
	Entity reflect.Value
	// Properties points at the relationship-properties instance, if any.
	Properties reflect.Value
}

// RelatedValueOf reads the relationship field of owner.
func RelatedValueOf(rel *schema.RelationshipDescriptor, owner reflect.Value) RelatedValue {
	field := rel.Value(owner)
	switch rel.Shape() {
	case schema.ShapeDynamicMap:
		return DynamicMap{Entities: readKeyed(field)}
	case schema.ShapePropertiesMap:
		return PropertiesMap{Relationships: readKeyed(field)}
	case schema.ShapePropertiesList:
		return PropertiesList{Relationships: readEntities(field)}
	case schema.ShapeList:
		return List{Entities: readEntities(field)}
	}
	entities := readEntities(field)
	if len(entities) == 0 {
		return Scalar{}
	}
	return Scalar{Entity: entities[0]}
}

// Related flattens v into the edges it describes. Relationship-properties
// instances without a target node are skipped.
func Related(rel *schema.RelationshipDescriptor, v RelatedValue) []RelatedEntity {
	var out []RelatedEntity
	switch v := v.(type) {
	case Scalar:
		if v.Entity.IsValid() {
			out = append(out, RelatedEntity{Type: rel.Type(), Entity: v.Entity})
		}
	case List:
		for _, e := range v.Entities {
			out = append(out, RelatedEntity{Type: rel.Type(), Entity: e})
		}
	case DynamicMap:
		for _, typ := range sortedKeys(v.Entities) {
			for _, e := range v.Entities[typ] {
				out = append(out, RelatedEntity{Type: typ, Entity: e})
			}
		}
	case PropertiesList:
		for _, p := range v.Relationships {
			if target := targetOf(rel, p); target.IsValid() {
				out = append(out, RelatedEntity{Type: rel.Type(), Entity: target, Properties: p})
			}
		}
	case PropertiesMap:
		for _, typ := range sortedKeys(v.Relationships) {
			for _, p := range v.Relationships[typ] {
				if target := targetOf(rel, p); target.IsValid() {
					out = append(out, RelatedEntity{Type: typ, Entity: target, Properties: p})
				}
			}
		}
	}
	return out
}

func targetOf(rel *schema.RelationshipDescriptor, properties reflect.Value) reflect.Value {
	props := rel.RelationshipPropertiesEntity()
	if props == nil || props.TargetNodeProperty() == nil {
		return reflect.Value{}
	}
	entities := readEntities(props.TargetNodeProperty().Value(properties))
	if len(entities) == 0 {
		return reflect.Value{}
	}
	return entities[0]
}

// readEntities returns the non-nil entity pointers held by a pointer,
// interface or slice field.
func readEntities(field reflect.Value) []reflect.Value {
	if !field.IsValid() {
		return nil
	}
	switch field.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]reflect.Value, 0, field.Len())
		for i := 0; i < field.Len(); i++ {
			out = append(out, readEntities(field.Index(i))...)
		}
		return out
	case reflect.Interface:
		if field.IsNil() {
			return nil
		}
		return readEntities(field.Elem())
	case reflect.Ptr:
		if field.IsNil() {
			return nil
		}
		return []reflect.Value{field}
	}
	return nil
}

func readKeyed(field reflect.Value) map[string][]reflect.Value {
	out := map[string][]reflect.Value{}
	if !field.IsValid() || field.Kind() != reflect.Map || field.IsNil() {
		return out
	}
	iter := field.MapRange()
	for iter.Next() {
		if entities := readEntities(iter.Value()); len(entities) > 0 {
			out[iter.Key().String()] = entities
		}
	}
	return out
}

func sortedKeys(m map[string][]reflect.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// fieldValue builds a value of type t holding v.
func fieldValue(t reflect.Type, v RelatedValue) (reflect.Value, error) {
	switch v := v.(type) {
	case Scalar:
		if !v.Entity.IsValid() {
			return reflect.Zero(t), nil
		}
		return elements(t, []reflect.Value{v.Entity})
	case List:
		return elements(t, v.Entities)
	case PropertiesList:
		return elements(t, v.Relationships)
	case DynamicMap:
		return keyed(t, v.Entities)
	case PropertiesMap:
		return keyed(t, v.Relationships)
	}
	return reflect.Value{}, fmt.Errorf("unsupported related value %T", v)
}

// elements builds a slice of t's element type, or the first value when t is
// a single-valued type.
func elements(t reflect.Type, values []reflect.Value) (reflect.Value, error) {
	if t.Kind() == reflect.Slice {
		out := reflect.MakeSlice(t, 0, len(values))
		for _, v := range values {
			if !v.Type().AssignableTo(t.Elem()) {
				return reflect.Value{}, fmt.Errorf("%w: %s is not assignable to %s", ErrConversion, v.Type(), t.Elem())
			}
			out = reflect.Append(out, v)
		}
		return out, nil
	}
	if len(values) == 0 {
		return reflect.Zero(t), nil
	}
	if !values[0].Type().AssignableTo(t) {
		return reflect.Value{}, fmt.Errorf("%w: %s is not assignable to %s", ErrConversion, values[0].Type(), t)
	}
	out := reflect.New(t).Elem()
	out.Set(values[0])
	return out, nil
}

func keyed(t reflect.Type, values map[string][]reflect.Value) (reflect.Value, error) {
	if t.Kind() != reflect.Map || t.Key().Kind() != reflect.String {
		return reflect.Value{}, fmt.Errorf("%w: %s cannot hold relationships keyed by type", ErrConversion, t)
	}
	out := reflect.MakeMapWithSize(t, len(values))
	for _, typ := range sortedKeys(values) {
		v, err := elements(t.Elem(), values[typ])
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetMapIndex(reflect.ValueOf(typ).Convert(t.Key()), v)
	}
	return out, nil
}

// Substitute returns v with each related entity and relationship-properties
// instance replaced by replace(instance). It reports whether any instance
// was replaced.
func Substitute(v RelatedValue, replace func(reflect.Value) reflect.Value) (RelatedValue, bool) {
	changed := false
	swap := func(values []reflect.Value) []reflect.Value {
		out := make([]reflect.Value, len(values))
		for i, value := range values {
			out[i] = replace(value)
			if out[i].Pointer() != value.Pointer() {
				changed = true
			}
		}
		return out
	}
	swapKeyed := func(values map[string][]reflect.Value) map[string][]reflect.Value {
		out := make(map[string][]reflect.Value, len(values))
		for typ, list := range values {
			out[typ] = swap(list)
		}
		return out
	}

	var result RelatedValue
	switch v := v.(type) {
	case Scalar:
		if !v.Entity.IsValid() {
			return v, false
		}
		result = Scalar{Entity: swap([]reflect.Value{v.Entity})[0]}
	case List:
		result = List{Entities: swap(v.Entities)}
	case DynamicMap:
		result = DynamicMap{Entities: swapKeyed(v.Entities)}
	case PropertiesList:
		result = PropertiesList{Relationships: swap(v.Relationships)}
	case PropertiesMap:
		result = PropertiesMap{Relationships: swapKeyed(v.Relationships)}
	default:
		return v, false
	}
	return result, changed
}

// SetRelated stores v in the relationship field of owner.
func SetRelated(rel *schema.RelationshipDescriptor, owner reflect.Value, v RelatedValue) error {
	field := rel.Value(owner)
	if !field.CanSet() {
		return fmt.Errorf("field %s of %s cannot be set", rel.FieldName(), rel.Source().Name())
	}
	fv, err := fieldValue(field.Type(), v)
	if err != nil {
		return fmt.Errorf("relationship %s: %w", rel.FieldName(), err)
	}
	field.Set(fv)
	return nil
}

// WithTargetNode points properties, a relationship-properties instance of
// rel, at target. Mutable instances are changed in place; immutable ones are
// copied and the copy is returned.
func WithTargetNode(rel *schema.RelationshipDescriptor, properties, target reflect.Value) (reflect.Value, error) {
	props := rel.RelationshipPropertiesEntity()
	if props == nil || props.TargetNodeProperty() == nil {
		return properties, nil
	}
	out := properties
	if props.IsImmutable() {
		out = reflect.New(properties.Elem().Type())
		out.Elem().Set(properties.Elem())
	}
	tn := props.TargetNodeProperty()
	field := tn.Value(out)
	if !field.CanSet() {
		return reflect.Value{}, fmt.Errorf("field %s of %s cannot be set", tn.FieldName(), props.Name())
	}
	if !target.Type().AssignableTo(field.Type()) {
		return reflect.Value{}, fmt.Errorf("%w: %s is not assignable to %s.%s", ErrConversion, target.Type(), props.Name(), tn.FieldName())
	}
	field.Set(target)
	return out, nil
}
