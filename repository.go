package neoogm

import (
	"context"
	"fmt"
	"reflect"

	"github.com/saulfrancisco-ruizacevedo/gocypher"

	"github.com/saulfrancisco-ruizacevedo/go-neoogm/cypher"
	"github.com/saulfrancisco-ruizacevedo/go-neoogm/schema"
)

// Repository provides typed CRUD operations for the entity type T on top of
// a Template. Entity-shaped reads load the related entities as well;
// builder-based finders map whatever the query returns.
type Repository[T any] struct {
	template *Template
	entity   *schema.EntityDescriptor
}

// NewRepository creates a new generic repository for the type T.
//
// Parameters:
//   - template: The Template used to run every statement.
//
// Returns:
//
//	A new Repository instance or an error if T is not an entity of the
//	template's schema.
func NewRepository[T any](template *Template) (*Repository[T], error) {
	e, err := template.Entity(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return nil, err
	}
	return &Repository[T]{template: template, entity: e}, nil
}

// Entity returns the descriptor of T.
func (r *Repository[T]) Entity() *schema.EntityDescriptor { return r.entity }

// Save creates a new node or updates an existing one, together with the
// entities reachable from it. Generated ids and versions are written back to
// entity.
//
// Parameters:
//   - ctx: The context for the query execution.
//   - entity: A pointer to the struct instance to be saved.
//
// Returns:
//
//	An error if the query building or execution fails.
func (r *Repository[T]) Save(ctx context.Context, entity *T) error {
	_, err := r.template.Save(ctx, entity)
	return err
}

// SaveAll saves entities in one transaction.
func (r *Repository[T]) SaveAll(ctx context.Context, entities ...*T) error {
	values := make([]any, len(entities))
	for i, e := range entities {
		values[i] = e
	}
	_, err := r.template.SaveAll(ctx, values...)
	return err
}

// FindByID retrieves a single entity from the database by its id.
//
// Parameters:
//   - ctx: The context for the query execution.
//   - id: The id value of the entity to find.
//
// Returns:
//
//	A pointer to the found entity, ErrNotFound if no record is found, or another
//	error if the query or mapping fails.
func (r *Repository[T]) FindByID(ctx context.Context, id any) (*T, error) {
	v, err := r.template.FindByID(ctx, r.entity, id)
	if err != nil {
		return nil, err
	}
	entity, ok := v.(*T)
	if !ok {
		return nil, fmt.Errorf("expected %T but mapped %T", entity, v)
	}
	return entity, nil
}

// FindAll retrieves every entity of type T.
func (r *Repository[T]) FindAll(ctx context.Context) ([]*T, error) {
	values, err := r.template.FindAll(ctx, r.entity)
	if err != nil {
		return nil, err
	}
	return typed[T](values), nil
}

// FindByProperty retrieves the entities whose property equals value. The
// property may be given by field name or by graph property name. Related
// entities are not loaded.
func (r *Repository[T]) FindByProperty(ctx context.Context, property string, value any) ([]*T, error) {
	props, err := r.propertyMatch(property, value)
	if err != nil {
		return nil, err
	}
	qb := gocypher.NewQueryBuilder().
		Match(gocypher.N(cypher.RootNodeName, r.entity.PrimaryLabel()).WithProperties(props)).
		Return(cypher.RootNodeName)
	return r.Find(ctx, qb)
}

// Find executes a custom query and maps every returned row to T. The query
// must return the node of T, and may return related nodes and relationships
// as well.
//
// Parameters:
//   - ctx: The context for the query execution.
//   - qb: A configured gocypher.QueryBuilder.
//
// Returns:
//
//	The mapped entities, empty if the query returned nothing, or an error.
func (r *Repository[T]) Find(ctx context.Context, qb *gocypher.QueryBuilder) ([]*T, error) {
	query, params, err := qb.Build()
	if err != nil {
		return nil, fmt.Errorf("could not build query: %w", err)
	}
	values, err := r.template.Query(ctx, r.entity, query, params)
	if err != nil {
		return nil, err
	}
	return typed[T](values), nil
}

// FindOne executes a custom query that must yield exactly one entity.
//
// Returns:
//
//	The entity, ErrNotFound if there is none, or an error if there are several.
func (r *Repository[T]) FindOne(ctx context.Context, qb *gocypher.QueryBuilder) (*T, error) {
	found, err := r.Find(ctx, qb)
	if err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return found[0], nil
	}
	return nil, fmt.Errorf("expected 1 record but found %d", len(found))
}

// Delete removes a node from the database by its id, together with its
// relationships.
func (r *Repository[T]) Delete(ctx context.Context, id any) error {
	return r.template.DeleteByID(ctx, r.entity, id)
}

// DeleteWithVersion removes entity if its version is still current.
func (r *Repository[T]) DeleteWithVersion(ctx context.Context, entity *T) error {
	return r.template.DeleteByIDWithVersion(ctx, entity)
}

// Count returns the number of stored entities of type T.
func (r *Repository[T]) Count(ctx context.Context) (int64, error) {
	return r.template.Count(ctx, r.entity)
}

// CountByProperty returns the number of entities whose property equals
// value.
func (r *Repository[T]) CountByProperty(ctx context.Context, property string, value any) (int64, error) {
	props, err := r.propertyMatch(property, value)
	if err != nil {
		return 0, err
	}
	query, params, err := gocypher.NewQueryBuilder().
		Match(gocypher.N(cypher.RootNodeName, r.entity.PrimaryLabel()).WithProperties(props)).
		Return("count(" + cypher.RootNodeName + ") AS " + cypher.NameOfCount).
		Build()
	if err != nil {
		return 0, fmt.Errorf("could not build query: %w", err)
	}
	return r.template.count(ctx, query, params, cypher.NameOfCount)
}

// propertyMatch returns the property map matching property = value.
func (r *Repository[T]) propertyMatch(property string, value any) (map[string]interface{}, error) {
	name := property
	if p, ok := r.entity.Property(property); ok {
		name = p.GraphPropertyName()
	} else if _, ok := r.entity.PropertyByGraphName(property); !ok {
		return nil, fmt.Errorf("%s has no property %q", r.entity.Name(), property)
	}
	converted, err := r.template.parameter(value)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{name: converted}, nil
}

func typed[T any](values []any) []*T {
	out := make([]*T, 0, len(values))
	for _, v := range values {
		if t, ok := v.(*T); ok {
			out = append(out, t)
		}
	}
	return out
}
