package neoogm

import (
	"context"
	"fmt"

	"github.com/saulfrancisco-ruizacevedo/gocypher"

	"github.com/saulfrancisco-ruizacevedo/go-neoogm/cypher"
	"github.com/saulfrancisco-ruizacevedo/go-neoogm/schema"
)

// PersistenceManager is the entry point of the persistence layer. It hands
// out repositories and runs operations that span several entity types.
type PersistenceManager struct {
	template *Template
}

// NewPersistenceManager creates a manager over template.
func NewPersistenceManager(template *Template) *PersistenceManager {
	return &PersistenceManager{template: template}
}

// Template returns the underlying template.
func (pm *PersistenceManager) Template() *Template { return pm.template }

// RepositoryFor is a generic function that creates and returns a repository
// for a specific struct type T, managed by the given PersistenceManager.
func RepositoryFor[T any](pm *PersistenceManager) (*Repository[T], error) {
	return NewRepository[T](pm.template)
}

// CreateRelation creates a relationship of type relType from one stored
// entity to another. Both entities are located by their ids, which must
// have been assigned, and their primary labels.
//
// Parameters:
//   - ctx: The context for the query execution.
//   - fromEntity: A pointer to the entity the relationship starts at.
//   - toEntity: A pointer to the entity the relationship ends at.
//   - relType: The relationship type.
//   - relProps: Properties of the new relationship, may be nil.
//
// Returns:
//
//	ErrNotFound if either entity is not stored, or another error if the query
//	fails.
func (pm *PersistenceManager) CreateRelation(ctx context.Context, fromEntity any, toEntity any, relType string, relProps map[string]any) error {
	from, fromID, err := pm.entityAndID(fromEntity)
	if err != nil {
		return err
	}
	to, toID, err := pm.entityAndID(toEntity)
	if err != nil {
		return err
	}

	query, params, err := pm.relationQuery(from, fromID, to, toID, relType, relProps)
	if err != nil {
		return err
	}
	result, err := pm.template.runner.Run(ctx, query, params)
	if err != nil {
		return err
	}
	if len(result.Records) == 0 {
		return fmt.Errorf("relating %s to %s: %w", from.Name(), to.Name(), ErrNotFound)
	}
	return nil
}

// relationQuery builds the statement of CreateRelation. Endpoints identified
// by an id property are matched by property; gocypher has no working WHERE,
// so endpoints with database ids go through the cypher package.
func (pm *PersistenceManager) relationQuery(from *schema.EntityDescriptor, fromID any, to *schema.EntityDescriptor, toID any, relType string, relProps map[string]any) (string, map[string]any, error) {
	g := pm.template.generator
	returns := g.ElementID("r") + " AS " + cypher.NameOfElementID
	fromProp, fromOK := idProperty(from)
	toProp, toOK := idProperty(to)

	if fromOK && toOK {
		qb := gocypher.NewQueryBuilder().
			Match(gocypher.N("a", from.PrimaryLabel()).WithProperties(map[string]interface{}{fromProp: fromID})).
			Match(gocypher.N("b", to.PrimaryLabel()).WithProperties(map[string]interface{}{toProp: toID})).
			Create(
				gocypher.NRef("a"),
				gocypher.R("r", relType).To().WithProperties(relProps),
				gocypher.NRef("b"),
			).
			Return(returns)
		query, params, err := qb.Build()
		if err != nil {
			return "", nil, fmt.Errorf("could not build query: %w", err)
		}
		return query, params, nil
	}

	if relProps == nil {
		relProps = map[string]any{}
	}
	query := cypher.Match(cypher.Node("a", from.PrimaryLabel())).
		Where(cypher.Eq(g.IDExpression("a", from), cypher.Param(cypher.FromID))).
		Match(cypher.Node("b", to.PrimaryLabel())).
		Where(cypher.Eq(g.IDExpression("b", to), cypher.Param(cypher.ToID))).
		Create(cypher.Related(cypher.Node("a"), schema.Outgoing, "r", []string{relType}, cypher.Node("b"))).
		Set("r += " + cypher.Param(cypher.NameOfProperties)).
		Return(returns).
		Build()
	return query, map[string]any{
		cypher.FromID:           fromID,
		cypher.ToID:             toID,
		cypher.NameOfProperties: relProps,
	}, nil
}

func idProperty(e *schema.EntityDescriptor) (string, bool) {
	if id := e.IDDescriptor(); id != nil {
		return id.GraphPropertyName()
	}
	return "", false
}

// entityAndID returns the descriptor of entity and its id parameter.
func (pm *PersistenceManager) entityAndID(entity any) (*schema.EntityDescriptor, any, error) {
	e, err := pm.template.pointerEntity(entity)
	if err != nil {
		return nil, nil, err
	}
	params, err := pm.template.converter.Write(e, entity)
	if err != nil {
		return nil, nil, err
	}
	id := params[cypher.NameOfID]
	if id == nil {
		return nil, nil, fmt.Errorf("%s has no id yet", e.Name())
	}
	return e, id, nil
}

// FindGraph executes a graph query defined by a gocypher.QueryBuilder and maps the result
// into a generic graph structure composed of nodes and edges.
//
// This method is domain-agnostic; it does not need to know about the entity types.
// The caller is responsible for constructing a valid query via the QueryBuilder, including
// a RETURN clause that specifies which nodes, relationships or paths should be included
// in the final graph. For example, `RETURN u, r, p`. Lists of graph elements, such as
// collect(r), are unpacked.
//
// Every node and relationship appears once in the result, even if it was returned by
// several rows.
//
// Parameters:
//   - ctx: The context for the query execution.
//   - qb: A pointer to a configured gocypher.QueryBuilder instance that defines the graph to retrieve.
//
// Returns:
//   - A pointer to a GraphResult containing the de-duplicated nodes and edges from the query.
//   - An ErrNotFound error if the query executes successfully but returns zero records.
//   - Any other error encountered during query building or execution.
func (pm *PersistenceManager) FindGraph(ctx context.Context, qb *gocypher.QueryBuilder) (*GraphResult, error) {
	query, params, err := qb.Build()
	if err != nil {
		return nil, fmt.Errorf("could not build query: %w", err)
	}

	eagerResult, err := pm.template.runner.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	if len(eagerResult.Records) == 0 {
		return nil, ErrNotFound
	}

	graph := newGraphCollector()
	for _, record := range eagerResult.Records {
		for _, value := range record.Values {
			graph.add(value)
		}
	}
	return graph.graph, nil
}
