// Package cypher renders the Cypher statements that read and write entities
// described by a schema.Context.
//
// A Generator holds no per-call state and is safe for concurrent use. All
// parameter and column names are listed in names.go.
package cypher

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/saulfrancisco-ruizacevedo/go-neoogm/schema"
)

// ErrUnsupported is returned for statements that cannot be generated for an
// entity, such as batch saves of entities with database generated ids.
var ErrUnsupported = errors.New("unsupported statement")

const (
	startNode = "startNode"
	endNode   = "endNode"
	helper    = "hlp"
	relAlias  = "rel"
	propsRel  = "relProps"
)

// IDExpressionFunc renders the expression identifying the entity bound to
// alias in a WHERE clause.
type IDExpressionFunc func(alias string, e *schema.EntityDescriptor) string

// ElementIDExpression identifies assigned and external ids by their
// property, internal string ids by elementId() and internal int64 ids by id().
func ElementIDExpression(alias string, e *schema.EntityDescriptor) string {
	if id := e.IDDescriptor(); id != nil {
		if name, ok := id.GraphPropertyName(); ok {
			return Property(alias, name)
		}
		if id.UsesLegacyID() {
			return "id(" + alias + ")"
		}
	}
	return "elementId(" + alias + ")"
}

// LegacyIDExpression identifies every internal id by id(), for servers that
// predate element ids.
func LegacyIDExpression(alias string, e *schema.EntityDescriptor) string {
	if id := e.IDDescriptor(); id != nil {
		if name, ok := id.GraphPropertyName(); ok {
			return Property(alias, name)
		}
	}
	return "id(" + alias + ")"
}

// DynamicLabels are the labels a save adds to and removes from a node in
// addition to its static labels.
type DynamicLabels struct {
	Add    []string
	Remove []string
}

// Generator renders statements.
type Generator struct {
	idExpression    IDExpressionFunc
	elementFunction string
}

// Option configures a Generator.
type Option func(*Generator)

// WithIDExpression replaces the id expression used in id conditions.
func WithIDExpression(fn IDExpressionFunc) Option {
	return func(g *Generator) {
		g.idExpression = fn
	}
}

// WithLegacyIDs makes the generator identify nodes and relationships by id()
// instead of elementId().
func WithLegacyIDs() Option {
	return func(g *Generator) {
		g.idExpression = LegacyIDExpression
		g.elementFunction = "id"
	}
}

// New returns a Generator using element ids unless configured otherwise.
func New(opts ...Option) *Generator {
	g := &Generator{idExpression: ElementIDExpression, elementFunction: "elementId"}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// IDExpression renders the id expression of the entity bound to alias.
func (g *Generator) IDExpression(alias string, e *schema.EntityDescriptor) string {
	return g.idExpression(alias, e)
}

// ElementID renders the element identity of the node or relationship bound
// to alias. Relationship statements match their endpoints by it.
func (g *Generator) ElementID(alias string) string {
	return g.elementFunction + "(" + alias + ")"
}

// IDCondition matches the root node by $__id__.
func (g *Generator) IDCondition(e *schema.EntityDescriptor) Condition {
	return Eq(g.idExpression(RootNodeName, e), Param(NameOfID))
}

// IDsCondition matches root nodes whose id is in $__ids__.
func (g *Generator) IDsCondition(e *schema.EntityDescriptor) Condition {
	return In(g.idExpression(RootNodeName, e), Param(NameOfIDs))
}

// VersionCondition matches the root node by $__version__, or is nil for
// unversioned entities.
func (g *Generator) VersionCondition(e *schema.EntityDescriptor) Condition {
	v := e.VersionProperty()
	if v == nil {
		return nil
	}
	return Eq(Property(RootNodeName, v.GraphPropertyName()), Param(NameOfVersion))
}

// PrepareMatchOf starts a statement matching the nodes of e that satisfy
// condition. Callers append the RETURN.
func (g *Generator) PrepareMatchOf(e *schema.EntityDescriptor, condition Condition) *Statement {
	return Match(Node(RootNodeName, e.StaticLabels()...)).Where(condition)
}

// PrepareDeleteOf deletes the matching nodes with their relationships and
// returns how many were deleted in __deleted__.
func (g *Generator) PrepareDeleteOf(e *schema.EntityDescriptor, condition Condition) string {
	return g.PrepareMatchOf(e, condition).
		DetachDelete(RootNodeName).
		Return("count(*) AS " + NameOfDeleted).
		Build()
}

// PrepareCountOf counts the matching nodes into __count__.
func (g *Generator) PrepareCountOf(e *schema.EntityDescriptor, condition Condition) string {
	return g.PrepareMatchOf(e, condition).
		Return("count(" + RootNodeName + ") AS " + NameOfCount).
		Build()
}

// PrepareSaveOf renders the upsert of one entity. The first branch updates an
// existing node and the second creates a missing one; both match the node by
// $__id__, so exactly one of them returns a row. The row carries __op__,
// __elementId__, __id__ and, for versioned entities, __version__.
//
// For versioned entities the update branch only matches the expected version
// and re-checks the incremented value after writing, and the create branch
// writes $__version__ + 1. A versioned save that returns no row lost a race.
func (g *Generator) PrepareSaveOf(e *schema.EntityDescriptor, labels DynamicLabels) string {
	n := RootNodeName
	idExpr := g.idExpression(n, e)
	staticLabels := e.StaticLabels()

	returns := func(op string) []string {
		items := []string{
			"'" + op + "' AS " + NameOfOperation,
			g.ElementID(n) + " AS " + NameOfElementID,
			idExpr + " AS " + NameOfID,
		}
		if v := e.VersionProperty(); v != nil {
			items = append(items, Property(n, v.GraphPropertyName())+" AS "+NameOfVersion)
		}
		return items
	}

	setProperties := n + " += " + Param(NameOfProperties)
	update := Match(Node(n, staticLabels...)).
		Where(And(Eq(idExpr, Param(NameOfID)), g.VersionCondition(e)))
	create := OptionalMatch(Node(helper, staticLabels...)).
		Where(Eq(g.idExpression(helper, e), Param(NameOfID))).
		With(helper).
		Where(IsNull(helper)).
		Create(Node(n, staticLabels...))

	if v := e.VersionProperty(); v != nil {
		version := Property(n, v.GraphPropertyName())
		next := Param(NameOfVersion) + " + 1"
		update.Set(setProperties, version+" = "+version+" + 1").
			With(n).
			Where(Eq(version, next))
		create.Set(setProperties, version+" = "+next)
	} else {
		update.Set(setProperties)
		create.Set(setProperties)
	}

	update.SetLabels(n, labels.Add...).
		RemoveLabels(n, labels.Remove...).
		Return(returns(OperationUpdated)...)
	create.SetLabels(n, labels.Add...).
		Return(returns(OperationCreated)...)

	return Union(update, create)
}

// PrepareSaveOfMultipleInstancesOf merges a batch of entities given as
// $__entities__, a list of maps with __id__ and __properties__. Only
// unversioned entities with assigned or externally generated ids qualify.
func (g *Generator) PrepareSaveOfMultipleInstancesOf(e *schema.EntityDescriptor) (string, error) {
	id := e.IDDescriptor()
	if id == nil || id.IsInternallyGenerated() {
		return "", fmt.Errorf("batch save of %s: %w: database generated ids", e.Name(), ErrUnsupported)
	}
	if e.HasVersionProperty() {
		return "", fmt.Errorf("batch save of %s: %w: versioned entity", e.Name(), ErrUnsupported)
	}
	name, _ := id.GraphPropertyName()
	n := RootNodeName
	return Unwind(Param(NameOfEntities), "entity").
		Merge(Node(n, e.PrimaryLabel()).WithProperties("{"+Escape(name)+": entity."+NameOfID+"}")).
		Set(n+" += entity."+NameOfProperties).
		SetLabels(n, e.AdditionalLabels()...).
		Return("entity."+NameOfID+" AS "+NameOfID, g.ElementID(n)+" AS "+NameOfElementID).
		Build(), nil
}

func relationshipTypes(rel *schema.RelationshipDescriptor, dynamicType string) ([]string, error) {
	if !rel.IsDynamic() {
		return []string{rel.Type()}, nil
	}
	if dynamicType == "" {
		return nil, fmt.Errorf("relationship %s: %w: dynamic relationship without type", rel, ErrUnsupported)
	}
	return []string{dynamicType}, nil
}

func (g *Generator) matchEndpoints(rel *schema.RelationshipDescriptor, from, to string) *Statement {
	return Match(Node(startNode, rel.Source().PrimaryLabel())).
		Where(Eq(g.ElementID(startNode), from)).
		Match(Node(endNode, rel.Target().PrimaryLabel())).
		Where(Eq(g.ElementID(endNode), to))
}

func edge(rel *schema.RelationshipDescriptor, alias string, types []string) RelationshipPattern {
	return Related(Node(startNode), rel.Direction(), alias, types, Node(endNode))
}

// CreateRelationshipCreationQuery merges one edge between the nodes
// identified by $fromId and $toId. dynamicType is the relationship type of
// dynamic relationships and ignored otherwise.
func (g *Generator) CreateRelationshipCreationQuery(rel *schema.RelationshipDescriptor, dynamicType string) (string, error) {
	types, err := relationshipTypes(rel, dynamicType)
	if err != nil {
		return "", err
	}
	return g.matchEndpoints(rel, Param(FromID), Param(ToID)).
		Merge(edge(rel, relAlias, types)).
		Return(g.ElementID(relAlias) + " AS " + NameOfElementID).
		Build(), nil
}

// CreateBatchRelationshipCreationQuery merges the edges listed in
// $__relationships__, a list of maps with fromId and toId.
func (g *Generator) CreateBatchRelationshipCreationQuery(rel *schema.RelationshipDescriptor, dynamicType string) (string, error) {
	types, err := relationshipTypes(rel, dynamicType)
	if err != nil {
		return "", err
	}
	return g.unwindRelationships(rel).
		Merge(edge(rel, relAlias, types)).
		Return("relationship."+FromID+" AS "+FromID, "relationship."+ToID+" AS "+ToID, g.ElementID(relAlias)+" AS "+NameOfElementID).
		Build(), nil
}

func (g *Generator) unwindRelationships(rel *schema.RelationshipDescriptor) *Statement {
	s := Unwind(Param(NameOfRelationships), "relationship").With("relationship")
	s.Match(Node(startNode, rel.Source().PrimaryLabel())).
		Where(Eq(g.ElementID(startNode), "relationship."+FromID)).
		Match(Node(endNode, rel.Target().PrimaryLabel())).
		Where(Eq(g.ElementID(endNode), "relationship."+ToID))
	return s
}

func (g *Generator) relationshipReturns(rel *schema.RelationshipDescriptor) []string {
	items := []string{g.ElementID(propsRel) + " AS " + NameOfElementID}
	if props := rel.RelationshipPropertiesEntity(); props != nil && props.IDDescriptor() != nil {
		items = append(items, g.idExpression(propsRel, props)+" AS "+NameOfID)
	}
	return items
}

// CreateRelationshipWithPropertiesCreationQuery writes one edge carrying
// $__properties__. New edges are created; existing ones are matched by
// $__id__ and updated. The edge identity is returned in __elementId__ and the
// value for the id field of the properties entity in __id__.
func (g *Generator) CreateRelationshipWithPropertiesCreationQuery(rel *schema.RelationshipDescriptor, dynamicType string, isNew bool) (string, error) {
	types, err := relationshipTypes(rel, dynamicType)
	if err != nil {
		return "", err
	}
	s := g.matchEndpoints(rel, Param(FromID), Param(ToID))
	if isNew {
		s.Create(edge(rel, propsRel, types))
	} else {
		props := rel.RelationshipPropertiesEntity()
		idExpr := g.ElementID(propsRel)
		if props != nil && props.IDDescriptor() != nil {
			idExpr = g.idExpression(propsRel, props)
		}
		s.Match(edge(rel, propsRel, types)).Where(Eq(idExpr, Param(NameOfID)))
	}
	return s.Set(propsRel + " += " + Param(NameOfProperties)).
		Return(g.relationshipReturns(rel)...).
		Build(), nil
}

// CreateBatchRelationshipWithPropertiesCreationQuery creates the edges listed
// in $__relationships__, maps with fromId, toId and __properties__. Each
// returned row carries its fromId and toId so the ids can be matched back.
func (g *Generator) CreateBatchRelationshipWithPropertiesCreationQuery(rel *schema.RelationshipDescriptor, dynamicType string) (string, error) {
	types, err := relationshipTypes(rel, dynamicType)
	if err != nil {
		return "", err
	}
	returns := append([]string{"relationship." + FromID + " AS " + FromID, "relationship." + ToID + " AS " + ToID}, g.relationshipReturns(rel)...)
	return g.unwindRelationships(rel).
		Create(edge(rel, propsRel, types)).
		Set(propsRel + " += relationship." + NameOfProperties).
		Return(returns...).
		Build(), nil
}

// CreateRelationshipRemoveQuery deletes the edges of rel starting at the node
// identified by $fromId, except those listed in $__knownRelationshipIds__.
// The list holds the ids of the relationship-properties entities for
// relationships with properties and the identities of the related nodes
// otherwise. For dynamic relationships every
// edge type towards the target is considered, apart from the types declared
// by the other relationships of the source.
func (g *Generator) CreateRelationshipRemoveQuery(rel *schema.RelationshipDescriptor) string {
	var types []string
	var excluded Condition
	if rel.IsDynamic() {
		if static := staticTypesTowards(rel); len(static) > 0 {
			excluded = Not(In("type("+relAlias+")", listLiteral(static)))
		}
	} else {
		types = []string{rel.Type()}
	}

	keep := g.ElementID(endNode)
	if rel.HasRelationshipProperties() {
		keep = g.ElementID(relAlias)
		if props := rel.RelationshipPropertiesEntity(); props != nil && props.IDDescriptor() != nil {
			keep = g.idExpression(relAlias, props)
		}
	}
	return Match(Related(Node(startNode, rel.Source().PrimaryLabel()), rel.Direction(), relAlias, types, Node(endNode, rel.Target().PrimaryLabel()))).
		Where(And(
			Eq(g.ElementID(startNode), Param(FromID)),
			Not(In(keep, Param(NameOfKnownRelationships))),
			excluded,
		)).
		Delete(relAlias).
		Build()
}

func staticTypesTowards(rel *schema.RelationshipDescriptor) []string {
	seen := map[string]bool{}
	var out []string
	for _, other := range rel.Source().Relationships() {
		if other.IsDynamic() || other.Target() != rel.Target() || other.Direction() != rel.Direction() {
			continue
		}
		if !seen[other.Type()] {
			seen[other.Type()] = true
			out = append(out, other.Type())
		}
	}
	sort.Strings(out)
	return out
}

func listLiteral(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + strings.ReplaceAll(strings.ReplaceAll(v, `\`, `\\`), "'", `\'`) + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// CreateStatementReturningDynamicLabels returns, in __nodeLabels__, the
// labels of the node identified by $__id__ that are not in
// $__staticLabels__.
func (g *Generator) CreateStatementReturningDynamicLabels(e *schema.EntityDescriptor) string {
	n := RootNodeName
	return g.PrepareMatchOf(e, g.IDCondition(e)).
		Return("[l IN labels(" + n + ") WHERE NOT l IN " + Param(NameOfStaticLabels) + "] AS " + NameOfLabels).
		Build()
}

// CreateReturnStatementForMatch returns the RETURN items for the nodes of e
// matched as n. Entities without possible circles are returned as a nested
// map projection in column n. Otherwise the items return the node as __sn__
// together with the relationships and related nodes of the paths collected
// as __ps__ by PrepareFindOf.
func (g *Generator) CreateReturnStatementForMatch(e *schema.EntityDescriptor, filter schema.PropertyFilter) []string {
	if e.ContainsPossibleCircles(filter) {
		return []string{
			RootNodeName + " AS " + NameOfSynthesizedRootNode,
			"reduce(r = [], p IN __ps__ | r + relationships(p)) AS " + NameOfSynthesizedRelationships,
			"reduce(m = [], p IN __ps__ | m + nodes(p)) AS " + NameOfSynthesizedRelatedNodes,
		}
	}
	return []string{g.projection(RootNodeName, e, filter, nil) + " AS " + RootNodeName}
}

// PrepareFindOf renders a complete read of the nodes of e matching condition,
// including the relationships accepted by filter.
func (g *Generator) PrepareFindOf(e *schema.EntityDescriptor, condition Condition, filter schema.PropertyFilter) string {
	s := g.PrepareMatchOf(e, condition)
	if e.ContainsPossibleCircles(filter) {
		types, anyType := reachableTypes(e, filter)
		if anyType {
			types = nil
		}
		path := Between(Node(RootNodeName), "", types, Node("")).Unbounded()
		s.OptionalMatch(NamedPath{Name: NameOfPaths, Pattern: path}).
			With(RootNodeName, "collect(DISTINCT "+NameOfPaths+") AS __ps__")
	}
	return s.Return(g.CreateReturnStatementForMatch(e, filter)...).Build()
}

// reachableTypes collects the relationship types reachable from e. anyType
// is true when a dynamic relationship makes the set open.
func reachableTypes(e *schema.EntityDescriptor, filter schema.PropertyFilter) (types []string, anyType bool) {
	seenTypes := map[string]bool{}
	visited := map[*schema.EntityDescriptor]bool{}
	var walk func(d *schema.EntityDescriptor, f schema.PropertyFilter)
	walk = func(d *schema.EntityDescriptor, f schema.PropertyFilter) {
		if visited[d] {
			return
		}
		visited[d] = true
		for _, rel := range d.RelationshipsInHierarchy(f) {
			if rel.IsDynamic() {
				anyType = true
			} else if !seenTypes[rel.Type()] {
				seenTypes[rel.Type()] = true
				types = append(types, rel.Type())
			}
			walk(rel.Target(), f.Nested(rel.FieldName()))
		}
	}
	walk(e, filter)
	sort.Strings(types)
	return types, anyType
}

func (g *Generator) projection(alias string, e *schema.EntityDescriptor, filter schema.PropertyFilter, extra []string) string {
	star := filter.IsNotFiltering()
	var selected []string
	legacy := false
	for _, p := range e.PropertiesInHierarchy() {
		if p.IsInternalIDProperty() {
			if id := e.IDDescriptor(); id != nil && id.UsesLegacyID() {
				legacy = true
			}
			continue
		}
		if p.IsTargetNode() || p.IsDynamicLabels() {
			continue
		}
		included := p.IsIDProperty() || p.IsVersionProperty() || filter.Contains(p.FieldName())
		if !included {
			continue
		}
		if p.IsComposite() {
			star = true
			continue
		}
		selected = append(selected, "."+Escape(p.GraphPropertyName()))
	}

	var items []string
	if star {
		items = append(items, ".*")
	} else {
		items = append(items, selected...)
	}
	items = append(items,
		NameOfLabels+": labels("+alias+")",
		NameOfElementID+": "+g.ElementID(alias),
	)
	if legacy {
		items = append(items, NameOfInternalID+": id("+alias+")")
	}
	items = append(items, extra...)

	for _, rel := range e.RelationshipsInHierarchy(filter) {
		items = append(items, Escape(rel.RelatedNodesCollectionName())+": "+g.comprehension(alias, rel, filter.Nested(rel.FieldName())))
	}
	return alias + "{" + strings.Join(items, ", ") + "}"
}

func (g *Generator) comprehension(alias string, rel *schema.RelationshipDescriptor, filter schema.PropertyFilter) string {
	edgeAlias := alias + "__" + rel.FieldName()
	targetAlias := alias + "_" + rel.FieldName()
	var types []string
	if !rel.IsDynamic() {
		types = []string{rel.Type()}
	}
	pattern := Related(Node(alias), rel.Direction(), edgeAlias, types, Node(targetAlias, rel.Target().PrimaryLabel()))

	extra := []string{NameOfRelationshipType + ": type(" + edgeAlias + ")"}
	if props := rel.RelationshipPropertiesEntity(); props != nil {
		inner := []string{".*", NameOfElementID + ": " + g.ElementID(edgeAlias)}
		if id := props.IDDescriptor(); id != nil && id.UsesLegacyID() {
			inner = append(inner, NameOfInternalID+": id("+edgeAlias+")")
		}
		extra = append(extra, NameOfRelationship+": "+edgeAlias+"{"+strings.Join(inner, ", ")+"}")
	}
	return "[" + pattern.String() + " | " + g.projection(targetAlias, rel.Target(), filter, extra) + "]"
}
