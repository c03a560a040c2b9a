package neoogm

import (
	"context"
	"fmt"
	"reflect"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/saulfrancisco-ruizacevedo/go-neoogm/cypher"
	"github.com/saulfrancisco-ruizacevedo/go-neoogm/mapping"
	"github.com/saulfrancisco-ruizacevedo/go-neoogm/schema"
)

// Template saves and loads entities described by a schema.Context. It is
// safe for concurrent use.
type Template struct {
	runner    Runner
	schema    *schema.Context
	converter *mapping.EntityConverter
	generator *cypher.Generator
	logger    *zap.Logger
	metrics   *Metrics
}

// TemplateOption configures a Template.
type TemplateOption func(*Template)

// WithLogger sets the logger of the Template.
func WithLogger(logger *zap.Logger) TemplateOption {
	return func(t *Template) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithIDStrategy selects how statements identify nodes and relationships.
func WithIDStrategy(strategy IDStrategy) TemplateOption {
	return func(t *Template) {
		if strategy == LegacyIDs {
			t.generator = cypher.New(cypher.WithLegacyIDs())
			return
		}
		t.generator = cypher.New()
	}
}

// WithConverter replaces the entity converter, for example to register
// custom property conversions.
func WithConverter(c *mapping.EntityConverter) TemplateOption {
	return func(t *Template) {
		t.converter = c
	}
}

// WithTemplateMetrics counts optimistic locking failures.
func WithTemplateMetrics(m *Metrics) TemplateOption {
	return func(t *Template) {
		t.metrics = m
	}
}

// NewTemplate creates a Template running its statements through runner.
func NewTemplate(runner Runner, ctx *schema.Context, opts ...TemplateOption) *Template {
	t := &Template{
		runner:    runner,
		schema:    ctx,
		generator: cypher.New(),
		logger:    ctx.Logger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.converter == nil {
		t.converter = mapping.NewEntityConverter(ctx, mapping.WithLogger(t.logger))
	}
	return t
}

func (t *Template) Schema() *schema.Context {
	return t.schema
}

func (t *Template) Generator() *cypher.Generator {
	return t.generator
}

func (t *Template) Converter() *mapping.EntityConverter {
	return t.converter
}

// Entity returns the descriptor of sample, a struct value, a pointer to one
// or a reflect.Type.
func (t *Template) Entity(sample any) (*schema.EntityDescriptor, error) {
	var (
		e  *schema.EntityDescriptor
		ok bool
	)
	if typ, isType := sample.(reflect.Type); isType {
		e, ok = t.schema.EntityFor(typ)
	} else {
		e, ok = t.schema.EntityOf(sample)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %T", schema.ErrUnknownEntity, sample)
	}
	return e, nil
}

// write runs work in one write transaction when the runner supports it.
func (t *Template) write(ctx context.Context, work func(ctx context.Context, r Runner) error) error {
	if tx, ok := t.runner.(Transactor); ok {
		return tx.ExecuteWrite(ctx, work)
	}
	return work(ctx, t.runner)
}

// Save writes entity, a pointer to a registered struct, together with every
// entity reachable through its relationships. Each entity and each
// relationship of the graph is written at most once, so cyclic graphs are
// fine. Ids and versions returned by the database are assigned back.
//
// Parameters:
//   - ctx: The context for the query execution.
//   - entity: A pointer to the struct instance to be saved.
//
// Returns:
//
//	The saved instance, which is a copy of entity for immutable entities, or an
//	error. A versioned entity that was changed concurrently yields an
//	*OptimisticLockingError.
func (t *Template) Save(ctx context.Context, entity any) (any, error) {
	if _, err := t.pointerEntity(entity); err != nil {
		return nil, err
	}
	var saved any
	err := t.write(ctx, func(ctx context.Context, r Runner) error {
		op := t.newSave(r)
		v, _, err := op.node(ctx, reflect.ValueOf(entity))
		if err != nil {
			return err
		}
		saved = v.Interface()
		return op.finish()
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// SaveAll saves entities in one transaction. A homogeneous batch of
// unversioned entities without relationships or dynamic labels, whose ids are
// assigned or externally generated, is written with a single statement.
func (t *Template) SaveAll(ctx context.Context, entities ...any) ([]any, error) {
	if len(entities) == 0 {
		return nil, nil
	}
	var common *schema.EntityDescriptor
	for i, entity := range entities {
		e, err := t.pointerEntity(entity)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			common = e
		} else if common != e {
			common = nil
		}
	}

	if common != nil && len(entities) > 1 && t.batchable(common) {
		if query, err := t.generator.PrepareSaveOfMultipleInstancesOf(common); err == nil {
			if err := t.saveBatch(ctx, common, query, entities); err != nil {
				return nil, err
			}
			return append([]any(nil), entities...), nil
		}
	}

	saved := make([]any, len(entities))
	err := t.write(ctx, func(ctx context.Context, r Runner) error {
		op := t.newSave(r)
		for i, entity := range entities {
			v, _, err := op.node(ctx, reflect.ValueOf(entity))
			if err != nil {
				return err
			}
			saved[i] = v.Interface()
		}
		return op.finish()
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (t *Template) batchable(e *schema.EntityDescriptor) bool {
	return len(e.Relationships()) == 0 && e.DynamicLabelsProperty() == nil && !e.IsImmutable()
}

func (t *Template) saveBatch(ctx context.Context, e *schema.EntityDescriptor, query string, entities []any) error {
	rows := make([]any, 0, len(entities))
	for _, entity := range entities {
		v := reflect.ValueOf(entity)
		if _, err := t.converter.GenerateID(e, v); err != nil {
			return err
		}
		props, err := t.converter.Properties(e, v)
		if err != nil {
			return err
		}
		id, err := t.converter.IDParameter(e, v)
		if err != nil {
			return err
		}
		rows = append(rows, map[string]any{cypher.NameOfID: id, cypher.NameOfProperties: props})
	}
	return t.write(ctx, func(ctx context.Context, r Runner) error {
		result, err := r.Run(ctx, query, map[string]any{cypher.NameOfEntities: rows})
		if err != nil {
			return err
		}
		t.logger.Debug("saved batch",
			zap.String("entity", e.Name()),
			zap.Int("entities", len(rows)),
			zap.Int("records", len(result.Records)))
		return nil
	})
}

// pointerEntity checks that entity is a non-nil pointer to a registered
// struct and returns its descriptor.
func (t *Template) pointerEntity(entity any) (*schema.EntityDescriptor, error) {
	v := reflect.ValueOf(entity)
	if !v.IsValid() || v.Kind() != reflect.Ptr || v.IsNil() {
		return nil, fmt.Errorf("entity must be a non-nil pointer, got %T", entity)
	}
	e, ok := t.schema.EntityFor(v.Type())
	if !ok {
		return nil, fmt.Errorf("%w: %T", schema.ErrUnknownEntity, entity)
	}
	return e, nil
}

// parameter converts a caller supplied value, typically an id, to its graph
// representation.
func (t *Template) parameter(id any) (any, error) {
	if id == nil {
		return nil, nil
	}
	return t.converter.Conversions().Write(reflect.ValueOf(id))
}

func (t *Template) parameters(ids []any) ([]any, error) {
	out := make([]any, len(ids))
	for i, id := range ids {
		p, err := t.parameter(id)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

// Query runs a read statement and maps its records to instances of e.
func (t *Template) Query(ctx context.Context, e *schema.EntityDescriptor, query string, params map[string]any) ([]any, error) {
	result, err := t.runner.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return t.converter.ReadAll(e, result.Records)
}

// FindByID loads the entity of type e with the given id, including its
// related entities.
//
// Returns:
//
//	The entity, ErrNotFound if there is none, or another error if the query or
//	mapping fails.
func (t *Template) FindByID(ctx context.Context, e *schema.EntityDescriptor, id any) (any, error) {
	param, err := t.parameter(id)
	if err != nil {
		return nil, err
	}
	query := t.generator.PrepareFindOf(e, t.generator.IDCondition(e), schema.AcceptAll())
	values, err := t.Query(ctx, e, query, map[string]any{cypher.NameOfID: param})
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, ErrNotFound
	}
	return values[0], nil
}

// FindAllByID loads the entities of type e whose id is in ids.
func (t *Template) FindAllByID(ctx context.Context, e *schema.EntityDescriptor, ids []any) ([]any, error) {
	params, err := t.parameters(ids)
	if err != nil {
		return nil, err
	}
	query := t.generator.PrepareFindOf(e, t.generator.IDsCondition(e), schema.AcceptAll())
	return t.Query(ctx, e, query, map[string]any{cypher.NameOfIDs: params})
}

// FindAll loads every entity of type e.
func (t *Template) FindAll(ctx context.Context, e *schema.EntityDescriptor) ([]any, error) {
	return t.Query(ctx, e, t.generator.PrepareFindOf(e, nil, schema.AcceptAll()), nil)
}

// Count returns the number of nodes of type e.
func (t *Template) Count(ctx context.Context, e *schema.EntityDescriptor) (int64, error) {
	return t.count(ctx, t.generator.PrepareCountOf(e, nil), nil, cypher.NameOfCount)
}

// ExistsByID reports whether a node of type e with the given id exists.
func (t *Template) ExistsByID(ctx context.Context, e *schema.EntityDescriptor, id any) (bool, error) {
	param, err := t.parameter(id)
	if err != nil {
		return false, err
	}
	n, err := t.count(ctx, t.generator.PrepareCountOf(e, t.generator.IDCondition(e)), map[string]any{cypher.NameOfID: param}, cypher.NameOfCount)
	return n > 0, err
}

// DeleteByID removes the node of type e with the given id and its
// relationships. Deleting a missing node is not an error.
func (t *Template) DeleteByID(ctx context.Context, e *schema.EntityDescriptor, id any) error {
	param, err := t.parameter(id)
	if err != nil {
		return err
	}
	_, err = t.count(ctx, t.generator.PrepareDeleteOf(e, t.generator.IDCondition(e)), map[string]any{cypher.NameOfID: param}, cypher.NameOfDeleted)
	return err
}

// DeleteByIDWithVersion removes entity only if its version still matches the
// stored one. Entities without a version are deleted by id.
//
// Returns:
//
//	An *OptimisticLockingError if the node exists with another version.
func (t *Template) DeleteByIDWithVersion(ctx context.Context, entity any) error {
	e, err := t.pointerEntity(entity)
	if err != nil {
		return err
	}
	params, err := t.converter.Write(e, entity)
	if err != nil {
		return err
	}
	params = map[string]any{cypher.NameOfID: params[cypher.NameOfID], cypher.NameOfVersion: params[cypher.NameOfVersion]}
	condition := cypher.And(t.generator.IDCondition(e), t.generator.VersionCondition(e))

	deleted, err := t.count(ctx, t.generator.PrepareDeleteOf(e, condition), params, cypher.NameOfDeleted)
	if err != nil || deleted > 0 || !e.HasVersionProperty() {
		return err
	}
	n, err := t.count(ctx, t.generator.PrepareCountOf(e, t.generator.IDCondition(e)), params, cypher.NameOfCount)
	if err != nil {
		return err
	}
	if n > 0 {
		t.metrics.observeLockingFailure()
		return &OptimisticLockingError{Entity: e.Name(), ID: params[cypher.NameOfID], Version: params[cypher.NameOfVersion]}
	}
	return nil
}

// DeleteAllByID removes the nodes of type e whose id is in ids and returns
// how many were deleted.
func (t *Template) DeleteAllByID(ctx context.Context, e *schema.EntityDescriptor, ids []any) (int64, error) {
	params, err := t.parameters(ids)
	if err != nil {
		return 0, err
	}
	return t.count(ctx, t.generator.PrepareDeleteOf(e, t.generator.IDsCondition(e)), map[string]any{cypher.NameOfIDs: params}, cypher.NameOfDeleted)
}

// DeleteAll removes every node of type e and returns how many were deleted.
func (t *Template) DeleteAll(ctx context.Context, e *schema.EntityDescriptor) (int64, error) {
	return t.count(ctx, t.generator.PrepareDeleteOf(e, nil), nil, cypher.NameOfDeleted)
}

func (t *Template) count(ctx context.Context, query string, params map[string]any, column string) (int64, error) {
	result, err := t.runner.Run(ctx, query, params)
	if err != nil {
		return 0, err
	}
	return int64Column(result, column)
}

func int64Column(result *neo4j.EagerResult, column string) (int64, error) {
	if result == nil || len(result.Records) == 0 {
		return 0, nil
	}
	raw, ok := result.Records[0].Get(column)
	if !ok {
		return 0, fmt.Errorf("could not find return value '%s' in query result", column)
	}
	switch n := raw.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	}
	return 0, fmt.Errorf("return value '%s' is %T, not an integer", column, raw)
}
