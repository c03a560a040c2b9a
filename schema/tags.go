package schema

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// TagName is the struct tag read by FromStruct.
const TagName = "ogm"

// fieldTag holds the parsed options of one `ogm` struct tag. Options are
// comma separated; an option may carry a value after a colon, as in
// `ogm:"id,generated:uuid,property:uid"`.
type fieldTag struct {
	skip    bool
	options map[string]string
}

func parseTag(tag string) fieldTag {
	ft := fieldTag{options: map[string]string{}}
	if tag == "-" {
		ft.skip = true
		return ft
	}
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, ":")
		ft.options[key] = value
	}
	return ft
}

func (t fieldTag) has(option string) bool {
	_, ok := t.options[option]
	return ok
}

func (t fieldTag) get(option string) string {
	return t.options[option]
}

// FromStruct builds the node definition of the struct type of sample, which
// may be a struct value, a pointer to one or a reflect.Type.
//
// Node level options live on a blank marker field:
//
//	_ struct{} `ogm:"node,labels:Person|Actor,primary:Person,immutable"`
//
// A marker with relationshipProperties declares the properties of an edge.
// Every exported field is mapped. Fields holding pointers to structs, or
// slices and string-keyed maps of them, are relationships; everything else is
// a property. An embedded struct tagged `ogm:"parent"` is the parent entity.
func FromStruct(sample any) (NodeDefinition, error) {
	typ, ok := sample.(reflect.Type)
	if !ok {
		typ = reflect.TypeOf(sample)
	}
	if typ == nil {
		return NodeDefinition{}, newMetadataError("", ErrInvalidDefinition, "nil sample")
	}
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return NodeDefinition{}, newMetadataError(typ.Name(), ErrInvalidDefinition, "type %s is not a struct", typ)
	}

	def := NodeDefinition{Name: typ.Name(), Type: typ}
	marker, hasID := false, false

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		tag := parseTag(field.Tag.Get(TagName))

		if field.Name == "_" {
			if tag.has("node") || tag.has("relationshipProperties") {
				marker = true
				applyNodeOptions(&def, tag)
			}
			continue
		}
		if tag.skip {
			continue
		}
		if field.Anonymous {
			if tag.has("parent") {
				if field.Type.Kind() != reflect.Struct {
					return NodeDefinition{}, newMetadataError(def.Name, ErrInvalidDefinition,
						"parent %s must be embedded by value", field.Type)
				}
				def.Parent = field.Type.Name()
			}
			continue
		}
		if !field.IsExported() {
			continue
		}

		if isRelationshipField(field, tag) {
			rd := RelationshipDefinition{
				Field:     field.Name,
				Type:      tag.get("rel"),
				Direction: tag.get("dir"),
				Target:    tag.get("target"),
				Dynamic:   tag.has("dynamic"),
			}
			if tag.has("nocascade") {
				rd.Cascade = Bool(false)
			}
			def.Relationships = append(def.Relationships, rd)
			continue
		}

		pd := PropertyDefinition{
			Field:         field.Name,
			Property:      tag.get("property"),
			ID:            tag.has("id"),
			Version:       tag.has("version"),
			Composite:     tag.has("composite"),
			Prefix:        tag.get("prefix"),
			Delimiter:     tag.get("delimiter"),
			DynamicLabels: tag.has("dynamicLabels"),
			Vector:        tag.has("vector"),
			TargetNode:    tag.has("targetNode"),
		}
		if tag.has("generated") {
			pd.Generated = tag.get("generated")
			if pd.Generated == "" {
				pd.Generated = GeneratedInternal
			}
		}
		if pd.ID {
			hasID = true
		}
		def.Properties = append(def.Properties, pd)
	}

	def.Explicit = Bool(marker || hasID)
	return def, nil
}

func applyNodeOptions(def *NodeDefinition, tag fieldTag) {
	if labels := tag.get("labels"); labels != "" {
		def.Labels = strings.Split(labels, "|")
	}
	def.PrimaryLabel = tag.get("primary")
	def.Immutable = tag.has("immutable")
	def.RelationshipProperties = tag.has("relationshipProperties")
}

var timeType = reflect.TypeOf(time.Time{})

func isRelationshipField(field reflect.StructField, tag fieldTag) bool {
	for _, opt := range []string{"property", "id", "version", "composite", "dynamicLabels", "vector", "targetNode"} {
		if tag.has(opt) {
			return false
		}
	}
	for _, opt := range []string{"rel", "target", "dir", "dynamic", "nocascade"} {
		if tag.has(opt) {
			return true
		}
	}
	return entityElem(field.Type) != nil
}

// entityElem returns the struct type held by a relationship-shaped field:
// *T, []*T, map[string]*T or map[string][]*T.
func entityElem(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Map {
		if t.Key().Kind() != reflect.String {
			return nil
		}
		t = t.Elem()
	}
	if t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	if t.Kind() != reflect.Ptr {
		return nil
	}
	t = t.Elem()
	if t.Kind() != reflect.Struct || isValueStruct(t) {
		return nil
	}
	return t
}

// isValueStruct reports struct types stored as single property values.
func isValueStruct(t reflect.Type) bool {
	return t == timeType || strings.HasPrefix(t.PkgPath(), "github.com/neo4j/neo4j-go-driver/")
}

// Discover returns the definitions of the struct types of samples, of their
// parents and of every type reachable through their relationships, in
// discovery order.
func Discover(samples ...any) ([]NodeDefinition, error) {
	var (
		defs  []NodeDefinition
		seen  = map[reflect.Type]bool{}
		queue []reflect.Type
	)
	enqueue := func(t reflect.Type) {
		for t != nil && t.Kind() == reflect.Ptr {
			t = t.Elem()
		}
		if t == nil || t.Kind() != reflect.Struct || seen[t] {
			return
		}
		seen[t] = true
		queue = append(queue, t)
	}

	for _, s := range samples {
		t, ok := s.(reflect.Type)
		if !ok {
			t = reflect.TypeOf(s)
		}
		if t == nil {
			return nil, fmt.Errorf("discover: nil sample")
		}
		enqueue(t)
	}

	for len(queue) > 0 {
		t := queue[0]
		queue = queue[1:]

		def, err := FromStruct(t)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)

		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			tag := parseTag(field.Tag.Get(TagName))
			if tag.skip {
				continue
			}
			switch {
			case field.Anonymous && tag.has("parent"):
				enqueue(field.Type)
			case tag.has("targetNode"):
				enqueue(field.Type)
			default:
				if elem := entityElem(field.Type); elem != nil && field.IsExported() {
					enqueue(elem)
				}
			}
		}
	}
	return defs, nil
}
