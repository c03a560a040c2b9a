package mapping

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/saulfrancisco-ruizacevedo/go-neoogm/convert"
	"github.com/saulfrancisco-ruizacevedo/go-neoogm/cypher"
	"github.com/saulfrancisco-ruizacevedo/go-neoogm/schema"
)

var errNotInstantiable = errors.New("entity has no Go type")

// Reader maps the records of one result. It is not safe for concurrent use.
type Reader struct {
	c           *EntityConverter
	known       *knownObjects
	pool        *pool
	collections map[*schema.EntityDescriptor]map[string]bool
}

// Read maps record to an instance of e, or of the most specific descendant
// of e matching the labels of the root node.
func (r *Reader) Read(e *schema.EntityDescriptor, record *neo4j.Record) (any, error) {
	v, _, err := r.read(e, record)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

func (r *Reader) read(e *schema.EntityDescriptor, record *neo4j.Record) (reflect.Value, string, error) {
	if record == nil {
		return reflect.Value{}, "", newMappingError(e.Name(), "", nil, ErrNoRootNode)
	}
	src, err := r.root(e, record)
	if err != nil {
		return reflect.Value{}, "", newMappingError(e.Name(), "", record.AsMap(), err)
	}
	identity := src.nodeIdentity()
	v, err := r.materialize(e, src, identity, reflect.Value{})
	if err != nil {
		return reflect.Value{}, "", newMappingError(e.Name(), identity, record.AsMap(), err)
	}
	return v, identity, nil
}

// root picks the value the row is about: the synthesized root node when
// present, else the single unseen node of the hierarchy of e, else an already
// seen one, else the single map of the row.
func (r *Reader) root(e *schema.EntityDescriptor, record *neo4j.Record) (source, error) {
	if v, ok := record.Get(cypher.NameOfSynthesizedRootNode); ok {
		if n, ok := convert.AsNode(v); ok {
			return nodeSource(n), nil
		}
	}

	labels := rootLabels(e)
	var fresh, seen []dbtype.Node
	identities := map[string]bool{}
	var maps []map[string]any
	for _, v := range record.Values {
		if n, ok := convert.AsNode(v); ok {
			identity := convert.NodeIdentity(n)
			if identities[identity] || !carriesAny(n.Labels, labels) {
				continue
			}
			identities[identity] = true
			if r.known.contains(identity) {
				seen = append(seen, n)
			} else {
				fresh = append(fresh, n)
			}
			continue
		}
		if m, ok := v.(map[string]any); ok {
			maps = append(maps, m)
		}
	}

	switch {
	case len(fresh) > 1:
		return source{}, fmt.Errorf("%w: %d nodes labeled %v", ErrAmbiguousRootNode, len(fresh), labels)
	case len(fresh) == 1:
		return nodeSource(fresh[0]), nil
	case len(seen) > 0:
		return nodeSource(seen[0]), nil
	case len(maps) == 1:
		return mapSource(maps[0], r.collectionKeys(e)), nil
	}
	return source{}, ErrNoRootNode
}

// rootLabels returns the primary labels of e and its descendants.
func rootLabels(e *schema.EntityDescriptor) []string {
	labels := []string{e.PrimaryLabel()}
	for _, child := range e.ChildrenInHierarchy() {
		labels = append(labels, child.PrimaryLabel())
	}
	return labels
}

func carriesAny(labels, wanted []string) bool {
	for _, l := range labels {
		for _, w := range wanted {
			if l == w {
				return true
			}
		}
	}
	return false
}

func (r *Reader) collectionKeys(e *schema.EntityDescriptor) map[string]bool {
	if keys, ok := r.collections[e]; ok {
		return keys
	}
	keys := map[string]bool{}
	for _, rel := range e.RelationshipsInHierarchy(schema.AcceptAll()) {
		keys[rel.RelatedNodesCollectionName()] = true
	}
	r.collections[e] = keys
	return keys
}

// materialize returns the instance for src, creating it on first sight and
// adding the keys it has not read yet on later sights. target is the node a
// relationship-properties instance points at.
func (r *Reader) materialize(base *schema.EntityDescriptor, src source, identity string, target reflect.Value) (reflect.Value, error) {
	concrete, surplus := base, []string(nil)
	if len(src.labels) > 0 {
		concrete, surplus = r.c.schema.DeriveConcreteDescriptor(base, src.labels)
	}
	if !concrete.HasType() {
		return reflect.Value{}, fmt.Errorf("%w: %s", errNotInstantiable, concrete.Name())
	}

	var o *knownObject
	if identity == "" {
		o = &knownObject{state: inConstruction, applied: map[string]struct{}{}}
	} else {
		var err error
		o, err = r.known.startConstruction(identity)
		if err != nil {
			return reflect.Value{}, err
		}
		if o.state != inConstruction {
			return r.update(o, src, surplus)
		}
	}

	o.entity = concrete
	v, err := r.instantiate(o, src, surplus, target)
	if err != nil {
		if identity != "" {
			r.known.abort(identity)
		}
		return reflect.Value{}, err
	}
	o.value, o.state = v, instantiated
	fail := func(err error) (reflect.Value, error) {
		if identity != "" {
			r.known.abort(identity)
		}
		return reflect.Value{}, err
	}
	if err := r.populate(o, src, surplus); err != nil {
		return fail(err)
	}
	if target.IsValid() {
		if err := setTargetNode(o, target); err != nil {
			return fail(err)
		}
	}
	o.state = complete
	return o.value, nil
}

// update adds what src knows and o does not. Immutable entities are copied
// before they change.
func (r *Reader) update(o *knownObject, src source, surplus []string) (reflect.Value, error) {
	if o.entity.IsImmutable() && r.pending(o, src, surplus) {
		cp := reflect.New(o.entity.Type())
		cp.Elem().Set(o.value.Elem())
		o.value = cp
	}
	if err := r.populate(o, src, surplus); err != nil {
		return reflect.Value{}, err
	}
	return o.value, nil
}

func (r *Reader) pending(o *knownObject, src source, surplus []string) bool {
	for _, p := range o.entity.Properties() {
		if key, _, present := r.propertyInput(o.entity, p, src, surplus); present && !o.isApplied(key) {
			return true
		}
	}
	for _, rel := range o.entity.Relationships() {
		if o.isApplied(relationshipKey(rel)) {
			continue
		}
		if src.isProjection() {
			if _, ok := src.projection[rel.RelatedNodesCollectionName()]; ok {
				return true
			}
		}
		if len(r.candidates(rel, src)) > 0 {
			return true
		}
	}
	return false
}

func (r *Reader) instantiate(o *knownObject, src source, surplus []string, target reflect.Value) (reflect.Value, error) {
	e := o.entity
	ctor := e.Constructor()
	if ctor == nil {
		return e.New(), nil
	}

	args := make(map[string]any, len(ctor.Parameters))
	for _, name := range ctor.Parameters {
		if p, ok := e.Property(name); ok {
			if p.IsTargetNode() {
				if target.IsValid() {
					args[name] = target.Interface()
				}
				continue
			}
			key, raw, present := r.propertyInput(e, p, src, surplus)
			v, err := r.c.conversions.Read(raw, p.Type())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("constructor parameter %s: %w", name, err)
			}
			args[name] = v.Interface()
			if present {
				o.apply(key)
			}
			continue
		}
		if rel, ok := e.Relationship(name); ok {
			o.apply(relationshipKey(rel))
			value, _, err := r.related(rel, src)
			if err != nil {
				return reflect.Value{}, err
			}
			fv, err := fieldValue(rel.FieldType(), value)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("constructor parameter %s: %w", name, err)
			}
			args[name] = fv.Interface()
		}
	}

	created, err := ctor.New(args)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("constructing %s: %w", e.Name(), err)
	}
	rv := reflect.ValueOf(created)
	switch {
	case e.Owns(rv):
		return rv, nil
	case rv.IsValid() && rv.Type() == e.Type():
		p := reflect.New(e.Type())
		p.Elem().Set(rv)
		return p, nil
	}
	return reflect.Value{}, fmt.Errorf("constructor of %s returned %T", e.Name(), created)
}

func relationshipKey(rel *schema.RelationshipDescriptor) string {
	return "rel:" + rel.FieldName()
}

// propertyInput returns the key, the raw value and presence of property p in
// src.
func (r *Reader) propertyInput(e *schema.EntityDescriptor, p *schema.PropertyDescriptor, src source, surplus []string) (string, any, bool) {
	switch {
	case p.IsInternalIDProperty():
		legacy := e.IDDescriptor() != nil && e.IDDescriptor().UsesLegacyID()
		return cypher.NameOfElementID, src.internalID(legacy), src.hasID
	case p.IsDynamicLabels():
		labels := make([]any, len(surplus))
		for i, l := range surplus {
			labels[i] = l
		}
		return cypher.NameOfLabels, labels, len(src.labels) > 0
	case p.IsTargetNode():
		return "", nil, false
	case p.IsComposite():
		values := convert.ExtractComposite(p, src.props)
		return p.CompositePrefix() + p.CompositeDelimiter(), values, len(values) > 0
	}
	raw, ok := src.props[p.GraphPropertyName()]
	return p.GraphPropertyName(), raw, ok
}

// populate reads every key of src not yet applied to o. Keys are marked
// before they are read, so a relationship leading back to o does not read
// them again.
func (r *Reader) populate(o *knownObject, src source, surplus []string) error {
	e := o.entity
	ctor := e.Constructor()
	for _, p := range e.Properties() {
		if ctor.IsParameter(p.FieldName()) {
			continue
		}
		key, raw, present := r.propertyInput(e, p, src, surplus)
		if !present || o.isApplied(key) {
			continue
		}
		o.apply(key)
		field := p.Value(o.value)
		if !field.CanSet() {
			return fmt.Errorf("field %s of %s cannot be set", p.FieldName(), e.Name())
		}
		v, err := r.c.conversions.Read(raw, field.Type())
		if err != nil {
			return fmt.Errorf("property %s: %w", p.FieldName(), err)
		}
		field.Set(v)
	}

	for _, rel := range e.Relationships() {
		key := relationshipKey(rel)
		if ctor.IsParameter(rel.FieldName()) || o.isApplied(key) {
			continue
		}
		o.apply(key)
		value, found, err := r.related(rel, src)
		if err != nil {
			return err
		}
		if !found {
			delete(o.applied, key)
			continue
		}
		field := rel.Value(o.value)
		if !field.CanSet() {
			return fmt.Errorf("field %s of %s cannot be set", rel.FieldName(), e.Name())
		}
		fv, err := fieldValue(field.Type(), value)
		if err != nil {
			return fmt.Errorf("relationship %s: %w", rel.FieldName(), err)
		}
		field.Set(fv)
	}
	return nil
}

func setTargetNode(o *knownObject, target reflect.Value) error {
	tn := o.entity.TargetNodeProperty()
	if tn == nil {
		return nil
	}
	field := tn.Value(o.value)
	if !field.CanSet() || !field.IsZero() {
		return nil
	}
	if !target.Type().AssignableTo(field.Type()) {
		return fmt.Errorf("%w: %s is not assignable to %s.%s", ErrConversion, target.Type(), o.entity.Name(), tn.FieldName())
	}
	field.Set(target)
	return nil
}

// edge is one related entity found for a relationship.
type edge struct {
	typ        string
	entity     reflect.Value
	properties reflect.Value
}

// related resolves rel for the entity read from src, from the projected
// collection when src is a projection carrying it, from the pool otherwise.
// found is false when the result holds nothing about rel.
func (r *Reader) related(rel *schema.RelationshipDescriptor, src source) (RelatedValue, bool, error) {
	var edges []edge
	found := false
	if src.isProjection() {
		if raw, ok := src.projection[rel.RelatedNodesCollectionName()]; ok {
			found = true
			items, _ := raw.([]any)
			for _, item := range items {
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				ed, err := r.projectedEdge(rel, m)
				if err != nil {
					return nil, false, err
				}
				edges = append(edges, ed)
			}
		}
	}
	if !found {
		for _, c := range r.candidates(rel, src) {
			found = true
			ed, err := r.pooledEdge(rel, c.relationship, c.other)
			if err != nil {
				return nil, false, err
			}
			edges = append(edges, ed)
		}
	}
	return shape(rel, edges), found, nil
}

func (r *Reader) projectedEdge(rel *schema.RelationshipDescriptor, m map[string]any) (edge, error) {
	target := rel.Target()
	nodeSrc := mapSource(m, r.collectionKeys(target))
	entity, err := r.materialize(target, nodeSrc, nodeSrc.nodeIdentity(), reflect.Value{})
	if err != nil {
		return edge{}, err
	}
	ed := edge{typ: rel.Type(), entity: entity}
	if t, ok := m[cypher.NameOfRelationshipType].(string); ok {
		ed.typ = t
	}
	if props := rel.RelationshipPropertiesEntity(); props != nil {
		relMap, _ := m[cypher.NameOfRelationship].(map[string]any)
		relSrc := mapSource(relMap, nil)
		identity := ""
		if relSrc.hasID {
			identity = "R:" + rel.Direction().String() + ":" + relSrc.elementID
		}
		ed.properties, err = r.materialize(props, relSrc, identity, entity)
		if err != nil {
			return edge{}, err
		}
	}
	return ed, nil
}

func (r *Reader) pooledEdge(rel *schema.RelationshipDescriptor, relationship dbtype.Relationship, other dbtype.Node) (edge, error) {
	entity, err := r.materialize(rel.Target(), nodeSource(other), convert.NodeIdentity(other), reflect.Value{})
	if err != nil {
		return edge{}, err
	}
	ed := edge{typ: relationship.Type, entity: entity}
	if props := rel.RelationshipPropertiesEntity(); props != nil {
		identity := convert.RelationshipIdentity(relationship, rel.Direction())
		ed.properties, err = r.materialize(props, relationshipSource(relationship), identity, entity)
		if err != nil {
			return edge{}, err
		}
	}
	return ed, nil
}

type candidate struct {
	relationship dbtype.Relationship
	other        dbtype.Node
}

// candidates returns the pooled relationships of the node read from src that
// rel describes: right type and direction, other end labeled as the target.
// Dynamic relationships take every type not claimed by a static relationship
// of the same source towards the same target.
func (r *Reader) candidates(rel *schema.RelationshipDescriptor, src source) []candidate {
	if !src.hasID {
		return nil
	}
	labels := rootLabels(rel.Target())
	var static map[string]bool
	if rel.IsDynamic() {
		static = staticTypesTowards(rel)
	}
	var out []candidate
	for _, pr := range r.pool.relationshipsOf(src.elementID) {
		start, end := convert.StartID(pr), convert.EndID(pr)
		var otherID string
		switch {
		case rel.IsOutgoing() && start == src.elementID:
			otherID = end
		case rel.IsIncoming() && end == src.elementID:
			otherID = start
		default:
			continue
		}
		if rel.IsDynamic() {
			if static[pr.Type] {
				continue
			}
		} else if pr.Type != rel.Type() {
			continue
		}
		other, ok := r.pool.node(otherID)
		if !ok || !carriesAny(other.Labels, labels) {
			continue
		}
		out = append(out, candidate{relationship: pr, other: other})
	}
	return out
}

func staticTypesTowards(rel *schema.RelationshipDescriptor) map[string]bool {
	out := map[string]bool{}
	for _, other := range rel.Source().Relationships() {
		if other.IsDynamic() || other.Direction() != rel.Direction() {
			continue
		}
		t := other.Target()
		if t == rel.Target() || t.IsAncestorOf(rel.Target()) || rel.Target().IsAncestorOf(t) {
			out[other.Type()] = true
		}
	}
	return out
}

// shape folds edges into the variant of RelatedValue rel holds.
func shape(rel *schema.RelationshipDescriptor, edges []edge) RelatedValue {
	switch rel.Shape() {
	case schema.ShapeDynamicMap:
		m := map[string][]reflect.Value{}
		for _, ed := range edges {
			m[ed.typ] = append(m[ed.typ], ed.entity)
		}
		return DynamicMap{Entities: m}
	case schema.ShapePropertiesMap:
		m := map[string][]reflect.Value{}
		for _, ed := range edges {
			m[ed.typ] = append(m[ed.typ], ed.properties)
		}
		return PropertiesMap{Relationships: m}
	case schema.ShapePropertiesList:
		values := make([]reflect.Value, 0, len(edges))
		for _, ed := range edges {
			values = append(values, ed.properties)
		}
		return PropertiesList{Relationships: values}
	case schema.ShapeList:
		values := make([]reflect.Value, 0, len(edges))
		for _, ed := range edges {
			values = append(values, ed.entity)
		}
		return List{Entities: values}
	}
	if len(edges) == 0 {
		return Scalar{}
	}
	return Scalar{Entity: edges[0].entity}
}
