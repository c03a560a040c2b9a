package schema

import (
	"reflect"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Context is a resolved, linked set of entity descriptors.
type Context struct {
	logger     *zap.Logger
	entities   []*EntityDescriptor
	byName     map[string]*EntityDescriptor
	byType     map[reflect.Type]*EntityDescriptor
	byLabel    map[string]*EntityDescriptor
	generators map[string]IDGenerator

	concrete sync.Map
}

// Option configures a Context.
type Option func(*Context)

// WithLogger sets the logger used for resolution warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Context) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithIDGenerator registers an external id generator under name.
func WithIDGenerator(name string, generator IDGenerator) Option {
	return func(c *Context) {
		c.generators[name] = generator
	}
}

// NewContext resolves defs into linked descriptors. Parents, relationship
// targets and relationship-properties entities are referenced by definition
// name, or found through the Go field types when the definitions carry them.
func NewContext(defs []NodeDefinition, opts ...Option) (*Context, error) {
	c := &Context{
		logger:     zap.NewNop(),
		byName:     make(map[string]*EntityDescriptor, len(defs)),
		byType:     make(map[reflect.Type]*EntityDescriptor, len(defs)),
		byLabel:    make(map[string]*EntityDescriptor, len(defs)),
		generators: map[string]IDGenerator{UUIDGeneratorName: UUIDGenerator{}},
	}
	for _, opt := range opts {
		opt(c)
	}

	r := &resolver{ctx: c, defs: make(map[*EntityDescriptor]*NodeDefinition, len(defs)), ownLabels: map[*EntityDescriptor][]string{}}
	if err := r.register(defs); err != nil {
		return nil, err
	}
	if err := r.linkParents(); err != nil {
		return nil, err
	}
	ordered := r.topological()
	for _, e := range ordered {
		r.resolveLabels(e)
	}
	for _, e := range ordered {
		if err := r.resolveProperties(e); err != nil {
			return nil, err
		}
	}
	for _, e := range ordered {
		if err := r.resolveRelationships(e); err != nil {
			return nil, err
		}
	}
	for _, e := range ordered {
		if err := r.verifyConstructor(e); err != nil {
			return nil, err
		}
	}
	c.linkObverses()
	if err := c.indexLabels(); err != nil {
		return nil, err
	}

	c.logger.Debug("schema context resolved", zap.Int("entities", len(c.entities)))
	return c, nil
}

// Build discovers the definitions of samples and of every type reachable
// through their relationships and resolves them.
func Build(samples ...any) (*Context, error) {
	defs, err := Discover(samples...)
	if err != nil {
		return nil, err
	}
	return NewContext(defs)
}

func (c *Context) Logger() *zap.Logger { return c.logger }

// Entities returns all descriptors in definition order.
func (c *Context) Entities() []*EntityDescriptor {
	return append([]*EntityDescriptor(nil), c.entities...)
}

// Entity looks up a descriptor by definition name.
func (c *Context) Entity(name string) (*EntityDescriptor, bool) {
	e, ok := c.byName[name]
	return e, ok
}

// EntityFor looks up the descriptor of a struct type or a pointer to one.
func (c *Context) EntityFor(typ reflect.Type) (*EntityDescriptor, bool) {
	for typ != nil && (typ.Kind() == reflect.Ptr || typ.Kind() == reflect.Slice) {
		typ = typ.Elem()
	}
	e, ok := c.byType[typ]
	return e, ok
}

// EntityOf looks up the descriptor of the dynamic type of v.
func (c *Context) EntityOf(v any) (*EntityDescriptor, bool) {
	if v == nil {
		return nil, false
	}
	return c.EntityFor(reflect.TypeOf(v))
}

// EntityByLabel looks up a node entity by its primary label.
func (c *Context) EntityByLabel(label string) (*EntityDescriptor, bool) {
	e, ok := c.byLabel[label]
	return e, ok
}

// IDGenerator returns the generator registered under name.
func (c *Context) IDGenerator(name string) (IDGenerator, bool) {
	g, ok := c.generators[name]
	return g, ok
}

type concreteResult struct {
	entity  *EntityDescriptor
	surplus []string
}

// DeriveConcreteDescriptor picks the most specific descriptor in the
// hierarchy of base whose static labels are all present in labels. The labels
// not covered by that descriptor are returned as surplus, to be assigned to
// its dynamic labels property. When no descriptor matches, base is returned
// and the surplus is computed against its static labels.
func (c *Context) DeriveConcreteDescriptor(base *EntityDescriptor, labels []string) (*EntityDescriptor, []string) {
	sorted := append([]string(nil), labels...)
	sort.Strings(sorted)
	key := base.name + "\x00" + strings.Join(sorted, "\x00")
	if cached, ok := c.concrete.Load(key); ok {
		res := cached.(concreteResult)
		return res.entity, append([]string(nil), res.surplus...)
	}

	present := make(map[string]bool, len(labels))
	for _, l := range labels {
		present[l] = true
	}

	var best *EntityDescriptor
	for _, candidate := range append([]*EntityDescriptor{base}, base.ChildrenInHierarchy()...) {
		if !containsAll(present, candidate.staticLabels) {
			continue
		}
		if best == nil || len(candidate.staticLabels) > len(best.staticLabels) {
			best = candidate
		}
	}
	if best == nil {
		best = base
		c.logger.Warn("no entity in hierarchy matches node labels, using base entity",
			zap.String("entity", base.name),
			zap.Strings("labels", labels))
	}

	covered := make(map[string]bool, len(best.staticLabels))
	for _, l := range best.staticLabels {
		covered[l] = true
	}
	surplus := []string{}
	for _, l := range labels {
		if !covered[l] {
			surplus = append(surplus, l)
		}
	}

	c.concrete.Store(key, concreteResult{entity: best, surplus: surplus})
	return best, append([]string(nil), surplus...)
}

func containsAll(set map[string]bool, labels []string) bool {
	for _, l := range labels {
		if !set[l] {
			return false
		}
	}
	return true
}

func (c *Context) linkObverses() {
	for _, e := range c.entities {
		for _, rel := range e.relationships {
			if rel.obverse != nil || rel.target == nil {
				continue
			}
			for _, candidate := range rel.target.RelationshipsInHierarchy(AcceptAll()) {
				if rel.IsInverseOf(candidate) {
					rel.obverse = candidate
					if candidate.obverse == nil {
						candidate.obverse = rel
					}
					break
				}
			}
		}
	}
}

func (c *Context) indexLabels() error {
	for _, e := range c.entities {
		if e.relationshipProperties {
			continue
		}
		if other, ok := c.byLabel[e.primaryLabel]; ok {
			return newMetadataError(e.name, ErrInvalidDefinition,
				"primary label %s is already used by %s", e.primaryLabel, other.name)
		}
		c.byLabel[e.primaryLabel] = e
	}
	return nil
}

// resolver carries the state of one NewContext call.
type resolver struct {
	ctx       *Context
	defs      map[*EntityDescriptor]*NodeDefinition
	ownLabels map[*EntityDescriptor][]string
}

func (r *resolver) register(defs []NodeDefinition) error {
	c := r.ctx
	for i := range defs {
		def := defs[i]
		if def.Type != nil && def.Type.Kind() == reflect.Ptr {
			def.Type = def.Type.Elem()
		}
		if def.Type != nil && def.Type.Kind() != reflect.Struct {
			return newMetadataError(def.Name, ErrInvalidDefinition, "type %s is not a struct", def.Type)
		}
		if def.Name == "" {
			if def.Type == nil {
				return newMetadataError("", ErrInvalidDefinition, "definition %d has neither a name nor a type", i)
			}
			def.Name = def.Type.Name()
		}
		if _, dup := c.byName[def.Name]; dup {
			return newMetadataError(def.Name, ErrInvalidDefinition, "defined more than once")
		}

		e := &EntityDescriptor{
			name:                   def.Name,
			typ:                    def.Type,
			explicit:               def.isExplicit(),
			relationshipProperties: def.RelationshipProperties,
			immutable:              def.Immutable,
			constructor:            def.Constructor,
		}
		c.byName[def.Name] = e
		c.entities = append(c.entities, e)
		if def.Type != nil {
			if other, dup := c.byType[def.Type]; dup {
				return newMetadataError(def.Name, ErrInvalidDefinition, "type %s is already mapped by %s", def.Type, other.name)
			}
			c.byType[def.Type] = e
		}
		d := def
		r.defs[e] = &d
	}
	return nil
}

func (r *resolver) linkParents() error {
	for _, e := range r.ctx.entities {
		def := r.defs[e]
		if def.Parent == "" {
			continue
		}
		parent, ok := r.ctx.byName[def.Parent]
		if !ok {
			return newMetadataError(e.name, ErrUnknownEntity, "parent %s is not defined", def.Parent)
		}
		e.parent = parent
		parent.children = append(parent.children, e)
	}
	for _, e := range r.ctx.entities {
		steps := 0
		for p := e.parent; p != nil; p = p.parent {
			if steps++; steps > len(r.ctx.entities) {
				return newMetadataError(e.name, ErrInvalidDefinition, "parent chain is circular")
			}
		}
	}
	return nil
}

// topological orders entities so that parents precede their children.
func (r *resolver) topological() []*EntityDescriptor {
	out := make([]*EntityDescriptor, 0, len(r.ctx.entities))
	done := map[*EntityDescriptor]bool{}
	var visit func(e *EntityDescriptor)
	visit = func(e *EntityDescriptor) {
		if done[e] {
			return
		}
		if e.parent != nil {
			visit(e.parent)
		}
		done[e] = true
		out = append(out, e)
	}
	for _, e := range r.ctx.entities {
		visit(e)
	}
	return out
}

func (r *resolver) resolveLabels(e *EntityDescriptor) {
	def := r.defs[e]
	primary := def.PrimaryLabel
	var additional []string
	switch {
	case primary != "":
		additional = def.Labels
	case len(def.Labels) > 0:
		primary = def.Labels[0]
		additional = def.Labels[1:]
	default:
		primary = def.Name
	}
	e.primaryLabel = primary
	r.ownLabels[e] = append([]string{primary}, additional...)

	seen := map[string]bool{}
	add := func(labels []string) {
		for _, l := range labels {
			if l != "" && !seen[l] {
				seen[l] = true
				e.staticLabels = append(e.staticLabels, l)
			}
		}
	}
	add(r.ownLabels[e])
	for p := e.parent; p != nil; p = p.parent {
		if p.explicit {
			add(r.ownLabels[p])
		}
	}
	e.additionalLabels = append([]string(nil), e.staticLabels[1:]...)
}

func (r *resolver) fieldIndex(e *EntityDescriptor, field string) (reflect.Type, []int, bool) {
	if e.typ == nil {
		return nil, nil, true
	}
	sf, ok := e.typ.FieldByName(field)
	if !ok {
		return nil, nil, false
	}
	return sf.Type, sf.Index, true
}

func (r *resolver) resolveProperties(e *EntityDescriptor) error {
	def := r.defs[e]

	var props []*PropertyDescriptor
	position := map[string]int{}
	if e.parent != nil {
		for _, inherited := range e.parent.properties {
			p := inherited.clone()
			if typ, index, ok := r.fieldIndex(e, p.fieldName); ok && e.typ != nil {
				p.typ, p.index = typ, index
			}
			position[p.fieldName] = len(props)
			props = append(props, p)
		}
	}

	ownID := false
	var idDef PropertyDefinition
	for _, pd := range def.Properties {
		if pd.Field == "" {
			return newMetadataError(e.name, ErrInvalidProperty, "property without field name")
		}
		typ, index, ok := r.fieldIndex(e, pd.Field)
		if !ok {
			return newMetadataError(e.name, ErrInvalidProperty, "type %s has no field %s", e.typ, pd.Field)
		}
		if typ == nil {
			typ = pd.Type
		}
		name := pd.Property
		if name == "" {
			name = pd.Field
		}
		p := &PropertyDescriptor{
			fieldName:     pd.Field,
			graphName:     name,
			typ:           typ,
			index:         index,
			id:            pd.ID,
			version:       pd.Version,
			composite:     pd.Composite,
			prefix:        pd.Prefix,
			delimiter:     pd.Delimiter,
			dynamicLabels: pd.DynamicLabels,
			vector:        pd.Vector,
			targetNode:    pd.TargetNode,
		}
		if p.composite {
			if p.prefix == "" {
				p.prefix = name
			}
			if p.delimiter == "" {
				p.delimiter = DefaultCompositeDelimiter
			}
			if typ != nil && (typ.Kind() != reflect.Map || typ.Key().Kind() != reflect.String) {
				return newMetadataError(e.name, ErrInvalidProperty, "composite property %s must be a map keyed by string", pd.Field)
			}
		}
		if pd.ID {
			ownID = true
			idDef = pd
			idDef.Type = typ
		}
		if i, inherited := position[p.fieldName]; inherited {
			props[i] = p
			continue
		}
		position[p.fieldName] = len(props)
		props = append(props, p)
	}

	e.properties = props
	e.byField = make(map[string]*PropertyDescriptor, len(props))
	e.byGraphName = make(map[string]*PropertyDescriptor, len(props))
	for _, p := range props {
		e.byField[p.fieldName] = p
	}

	if err := r.classifyProperties(e); err != nil {
		return err
	}

	switch {
	case ownID:
		id, err := computeIDDescriptor(e.name, idDef, e.idProperty.graphName, r.ctx.generators)
		if err != nil {
			return err
		}
		e.id = id
	case e.parent != nil && e.idProperty != nil:
		e.id = e.parent.id
	}
	if e.idProperty != nil && e.id != nil && e.id.IsInternallyGenerated() {
		e.idProperty.internalID = true
	}

	for _, p := range props {
		if p.internalID || p.targetNode || p.dynamicLabels {
			continue
		}
		if p.composite {
			continue
		}
		if other, dup := e.byGraphName[p.graphName]; dup {
			return newMetadataError(e.name, ErrDuplicateProperty,
				"fields %s and %s both map to graph property %s", other.fieldName, p.fieldName, p.graphName)
		}
		e.byGraphName[p.graphName] = p
	}

	if e.idProperty == nil && e.explicit && !e.relationshipProperties {
		return newMetadataError(e.name, ErrMissingID, "explicit node entity has no id property")
	}
	return nil
}

var stringSliceType = reflect.TypeOf([]string(nil))

func (r *resolver) classifyProperties(e *EntityDescriptor) error {
	for _, p := range e.properties {
		switch {
		case p.id:
			if e.idProperty != nil {
				return newMetadataError(e.name, ErrInvalidIDConfiguration,
					"more than one id property (%s, %s)", e.idProperty.fieldName, p.fieldName)
			}
			e.idProperty = p
		case p.version:
			if e.version != nil {
				return newMetadataError(e.name, ErrInvalidProperty, "more than one version property")
			}
			if p.typ != nil && !isInteger(p.typ) {
				return newMetadataError(e.name, ErrInvalidProperty, "version property %s must be an integer", p.fieldName)
			}
			e.version = p
		case p.dynamicLabels:
			if e.dynamicLabels != nil {
				return newMetadataError(e.name, ErrMultipleDynamicLabels,
					"fields %s and %s are both dynamic labels", e.dynamicLabels.fieldName, p.fieldName)
			}
			if p.typ != nil && p.typ != stringSliceType {
				return newMetadataError(e.name, ErrInvalidProperty, "dynamic labels property %s must be []string", p.fieldName)
			}
			e.dynamicLabels = p
		case p.vector:
			if e.vector != nil {
				return newMetadataError(e.name, ErrInvalidProperty, "more than one vector property")
			}
			if p.typ != nil && (p.typ.Kind() != reflect.Slice ||
				(p.typ.Elem().Kind() != reflect.Float32 && p.typ.Elem().Kind() != reflect.Float64)) {
				return newMetadataError(e.name, ErrInvalidProperty, "vector property %s must be a float slice", p.fieldName)
			}
			e.vector = p
		case p.targetNode:
			if !e.relationshipProperties {
				return newMetadataError(e.name, ErrInvalidProperty, "target node %s outside of a relationship properties entity", p.fieldName)
			}
			if e.targetNode != nil {
				return newMetadataError(e.name, ErrInvalidProperty, "more than one target node property")
			}
			e.targetNode = p
		}
	}
	return nil
}

func isInteger(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func (r *resolver) resolveRelationships(e *EntityDescriptor) error {
	def := r.defs[e]

	var rels []*RelationshipDescriptor
	position := map[string]int{}
	if e.parent != nil {
		for _, inherited := range e.parent.relationships {
			rel := inherited.clone()
			rel.source = e
			if typ, index, ok := r.fieldIndex(e, rel.fieldName); ok && e.typ != nil {
				rel.fieldType, rel.index = typ, index
			}
			position[rel.fieldName] = len(rels)
			rels = append(rels, rel)
		}
	}

	for _, rd := range def.Relationships {
		if rd.Field == "" {
			return newMetadataError(e.name, ErrInvalidRelationship, "relationship without field name")
		}
		fieldType, index, ok := r.fieldIndex(e, rd.Field)
		if !ok {
			return newMetadataError(e.name, ErrInvalidRelationship, "type %s has no field %s", e.typ, rd.Field)
		}
		if fieldType == nil {
			fieldType = rd.FieldType
		}

		dynamic, many := rd.Dynamic, rd.Many
		var elem reflect.Type
		if fieldType != nil {
			t := fieldType
			if t.Kind() == reflect.Map {
				if t.Key().Kind() != reflect.String {
					return newMetadataError(e.name, ErrInvalidRelationship, "dynamic relationship %s must be keyed by string", rd.Field)
				}
				dynamic = true
				t = t.Elem()
			}
			many = false
			if t.Kind() == reflect.Slice {
				many = true
				t = t.Elem()
			}
			elem = t
		}
		if dynamic && rd.Type != "" {
			return newMetadataError(e.name, ErrInvalidRelationship,
				"dynamic relationship %s must not declare the type %s", rd.Field, rd.Type)
		}
		relType := rd.Type
		if !dynamic && relType == "" {
			relType = RelationshipTypeFromField(rd.Field)
		}
		direction, err := ParseDirection(rd.Direction)
		if err != nil {
			return newMetadataError(e.name, ErrInvalidRelationship, "%s: %v", rd.Field, err)
		}

		target, props, err := r.resolveTarget(e, rd, elem)
		if err != nil {
			return err
		}

		rel := &RelationshipDescriptor{
			fieldName:        rd.Field,
			typ:              relType,
			dynamic:          dynamic,
			direction:        direction,
			source:           e,
			target:           target,
			propertiesEntity: props,
			cascade:          rd.cascades(),
			many:             many,
			fieldType:        fieldType,
			index:            index,
		}
		if i, inherited := position[rel.fieldName]; inherited {
			rels[i] = rel
			continue
		}
		position[rel.fieldName] = len(rels)
		rels = append(rels, rel)
	}

	dynamicTargets := map[*EntityDescriptor]string{}
	for _, rel := range rels {
		if !rel.dynamic {
			continue
		}
		if other, dup := dynamicTargets[rel.target]; dup {
			return newMetadataError(e.name, ErrInvalidRelationship,
				"dynamic relationships %s and %s share the target %s", other, rel.fieldName, rel.target.name)
		}
		dynamicTargets[rel.target] = rel.fieldName
	}

	e.relationships = rels
	return nil
}

func (r *resolver) resolveTarget(e *EntityDescriptor, rd RelationshipDefinition, elem reflect.Type) (*EntityDescriptor, *EntityDescriptor, error) {
	c := r.ctx
	var target, props *EntityDescriptor
	if rd.Properties != "" {
		p, ok := c.byName[rd.Properties]
		if !ok {
			return nil, nil, newMetadataError(e.name, ErrUnknownEntity, "relationship properties %s of %s are not defined", rd.Properties, rd.Field)
		}
		props = p
	}
	if rd.Target != "" {
		t, ok := c.byName[rd.Target]
		if !ok {
			return nil, nil, newMetadataError(e.name, ErrUnknownEntity, "target %s of %s is not defined", rd.Target, rd.Field)
		}
		target = t
	} else if elem != nil {
		target, _ = c.EntityFor(elem)
	}

	if target != nil && target.relationshipProperties {
		props, target = target, nil
	}
	if props != nil {
		if !props.relationshipProperties {
			return nil, nil, newMetadataError(e.name, ErrInvalidRelationship, "%s is not a relationship properties entity", props.name)
		}
		if props.targetNode == nil {
			return nil, nil, newMetadataError(e.name, ErrInvalidRelationship, "relationship properties %s have no target node", props.name)
		}
		if target == nil && props.targetNode.typ != nil {
			target, _ = c.EntityFor(props.targetNode.typ)
		}
	}
	if target == nil {
		return nil, nil, newMetadataError(e.name, ErrUnknownEntity, "cannot resolve the target of relationship %s", rd.Field)
	}
	return target, props, nil
}

func (r *resolver) verifyConstructor(e *EntityDescriptor) error {
	if e.constructor == nil {
		return nil
	}
	if e.constructor.New == nil {
		return newMetadataError(e.name, ErrInvalidDefinition, "constructor without function")
	}
	for _, param := range e.constructor.Parameters {
		if _, ok := e.byField[param]; ok {
			continue
		}
		if _, ok := e.Relationship(param); ok {
			continue
		}
		return newMetadataError(e.name, ErrInvalidDefinition, "constructor parameter %s is not a mapped field", param)
	}
	return nil
}
