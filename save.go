package neoogm

import (
	"context"
	"fmt"
	"reflect"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/saulfrancisco-ruizacevedo/go-neoogm/cypher"
	"github.com/saulfrancisco-ruizacevedo/go-neoogm/mapping"
	"github.com/saulfrancisco-ruizacevedo/go-neoogm/savestate"
	"github.com/saulfrancisco-ruizacevedo/go-neoogm/schema"
)

// saveOperation is the state of one Save or SaveAll call.
type saveOperation struct {
	t      *Template
	runner Runner
	state  *savestate.Machine
}

func (t *Template) newSave(r Runner) *saveOperation {
	return &saveOperation{t: t, runner: r, state: savestate.New(t.schema, nil, nil)}
}

// link is one edge of a relationship field with the id of its target node.
type link struct {
	mapping.RelatedEntity
	targetID any
}

func (s *saveOperation) run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	return s.runner.Run(ctx, query, params)
}

// finish checks that every relationship id waiting to be assigned got one.
func (s *saveOperation) finish() error {
	if n := s.state.PendingIDUpdates(); n > 0 {
		return fmt.Errorf("%w: %d relationship ids were not returned", savestate.ErrInvariant, n)
	}
	return nil
}

// node saves the entity v points to, then its relationships. It returns the
// saved instance and the element id of its node.
func (s *saveOperation) node(ctx context.Context, v reflect.Value) (reflect.Value, any, error) {
	e, ok := s.t.schema.EntityFor(v.Type())
	if !ok {
		return reflect.Value{}, nil, fmt.Errorf("%w: %s", schema.ErrUnknownEntity, v.Type())
	}
	if s.state.HasProcessedValue(v.Interface()) {
		id, _ := s.state.InternalID(v.Interface())
		return reflect.ValueOf(s.state.ProcessedAs(v.Interface())), id, nil
	}

	if _, err := s.t.converter.GenerateID(e, v); err != nil {
		return reflect.Value{}, nil, err
	}
	labels, err := s.dynamicLabels(ctx, e, v)
	if err != nil {
		return reflect.Value{}, nil, err
	}
	params, err := s.t.converter.Write(e, v.Interface())
	if err != nil {
		return reflect.Value{}, nil, err
	}

	result, err := s.run(ctx, s.t.generator.PrepareSaveOf(e, labels), params)
	if err != nil {
		return reflect.Value{}, nil, fmt.Errorf("saving %s: %w", e.Name(), err)
	}
	if len(result.Records) == 0 {
		if e.HasVersionProperty() {
			s.t.metrics.observeLockingFailure()
			return reflect.Value{}, nil, &OptimisticLockingError{Entity: e.Name(), ID: params[cypher.NameOfID], Version: params[cypher.NameOfVersion]}
		}
		return reflect.Value{}, nil, fmt.Errorf("saving %s: statement returned no row", e.Name())
	}
	row := result.Records[0]
	elementID, _ := row.Get(cypher.NameOfElementID)
	op, _ := row.Get(cypher.NameOfOperation)

	saved := v
	if e.IsImmutable() && (e.IsUsingInternalIDs() || e.HasVersionProperty()) {
		saved = reflect.New(v.Elem().Type())
		saved.Elem().Set(v.Elem())
	}
	if e.IsUsingInternalIDs() {
		id, _ := row.Get(cypher.NameOfID)
		if err := s.t.converter.AssignID(e, saved, id); err != nil {
			return reflect.Value{}, nil, err
		}
	}
	if e.HasVersionProperty() {
		version, _ := row.Get(cypher.NameOfVersion)
		if err := s.t.converter.AssignVersion(e, saved, version); err != nil {
			return reflect.Value{}, nil, err
		}
	}
	if err := s.state.MarkValueAsProcessed(saved.Interface(), elementID); err != nil {
		return reflect.Value{}, nil, err
	}
	if saved.Pointer() != v.Pointer() {
		if err := s.state.MarkValueAsProcessedAs(v.Interface(), saved.Interface()); err != nil {
			return reflect.Value{}, nil, err
		}
	}
	s.t.logger.Debug("saved entity",
		zap.String("entity", e.Name()),
		zap.Any("operation", op),
		zap.Any("elementId", elementID))

	created := op == cypher.OperationCreated
	type update struct {
		rel   *schema.RelationshipDescriptor
		value mapping.RelatedValue
	}
	var updates []update
	for _, rel := range e.Relationships() {
		value, err := s.relationship(ctx, rel, saved, elementID, created)
		if err != nil {
			return reflect.Value{}, nil, err
		}
		if value != nil {
			updates = append(updates, update{rel: rel, value: value})
		}
	}
	if len(updates) == 0 {
		return saved, elementID, nil
	}

	// Related immutable entities were saved as new instances, which replace
	// the old ones in the relationship fields.
	if e.IsImmutable() && saved.Pointer() == v.Pointer() {
		saved = reflect.New(v.Elem().Type())
		saved.Elem().Set(v.Elem())
		if err := s.state.MarkValueAsProcessed(saved.Interface(), elementID); err != nil {
			return reflect.Value{}, nil, err
		}
		if err := s.state.MarkValueAsProcessedAs(v.Interface(), saved.Interface()); err != nil {
			return reflect.Value{}, nil, err
		}
	}
	for _, u := range updates {
		if err := mapping.SetRelated(u.rel, saved, u.value); err != nil {
			return reflect.Value{}, nil, err
		}
	}
	return saved, elementID, nil
}

// dynamicLabels returns the labels to add from the dynamic labels field and,
// for stored nodes, the labels to remove because the field no longer holds
// them.
func (s *saveOperation) dynamicLabels(ctx context.Context, e *schema.EntityDescriptor, v reflect.Value) (cypher.DynamicLabels, error) {
	if e.DynamicLabelsProperty() == nil {
		return cypher.DynamicLabels{}, nil
	}
	current := s.t.converter.DynamicLabels(e, v)
	labels := cypher.DynamicLabels{Add: current}
	if e.IsNew(v) {
		return labels, nil
	}
	id, err := s.t.converter.IDParameter(e, v)
	if err != nil || id == nil {
		return labels, err
	}
	result, err := s.run(ctx, s.t.generator.CreateStatementReturningDynamicLabels(e), map[string]any{
		cypher.NameOfID:           id,
		cypher.NameOfStaticLabels: e.StaticLabels(),
	})
	if err != nil {
		return labels, fmt.Errorf("reading labels of %s: %w", e.Name(), err)
	}
	if len(result.Records) == 0 {
		return labels, nil
	}
	stored, _ := result.Records[0].Get(cypher.NameOfLabels)
	list, _ := stored.([]any)
	keep := make(map[string]bool, len(current))
	for _, l := range current {
		keep[l] = true
	}
	for _, l := range list {
		if name, ok := l.(string); ok && !keep[name] {
			labels.Remove = append(labels.Remove, name)
		}
	}
	return labels, nil
}

// relationship writes the edges of one relationship field of the saved
// owner. Targets are saved first, then edges the field no longer holds are
// removed from stored owners, then the missing edges are created. When
// immutable targets were saved as new instances, the field content holding
// them is returned; it is nil otherwise.
func (s *saveOperation) relationship(ctx context.Context, rel *schema.RelationshipDescriptor, owner reflect.Value, ownerID any, created bool) (mapping.RelatedValue, error) {
	sourceID := fmt.Sprint(ownerID)
	current := mapping.RelatedValueOf(rel, owner)
	related := mapping.Related(rel, current)
	values := make([]any, len(related))
	for i, r := range related {
		values[i] = r.Entity.Interface()
	}
	switch s.state.StateOf(sourceID, rel, values) {
	case savestate.ProcessedBoth, savestate.ProcessedAllRelationships:
		return nil, nil
	}
	s.state.MarkRelationshipAsProcessed(sourceID, rel)

	links := make([]link, 0, len(related))
	replaced := map[any]reflect.Value{}
	for _, r := range related {
		saved, targetID, err := s.target(ctx, rel, r.Entity)
		if err != nil {
			return nil, err
		}
		if s.replaces(saved, r.Entity) {
			if r.Properties.IsValid() {
				props, err := mapping.WithTargetNode(rel, r.Properties, saved)
				if err != nil {
					return nil, err
				}
				if props.Pointer() != r.Properties.Pointer() {
					replaced[r.Properties.Interface()] = props
				}
				r.Properties = props
			} else {
				replaced[r.Entity.Interface()] = saved
			}
			r.Entity = saved
		}
		links = append(links, link{RelatedEntity: r, targetID: targetID})
	}

	if !created {
		if err := s.removeObsolete(ctx, rel, ownerID, links); err != nil {
			return nil, err
		}
	}
	var err error
	if rel.HasRelationshipProperties() {
		err = s.createWithProperties(ctx, rel, ownerID, links)
	} else {
		err = s.create(ctx, rel, ownerID, links)
	}
	if err != nil || len(replaced) == 0 {
		return nil, err
	}
	updated, changed := mapping.Substitute(current, func(v reflect.Value) reflect.Value {
		if r, ok := replaced[v.Interface()]; ok {
			return r
		}
		return v
	})
	if !changed {
		return nil, nil
	}
	return updated, nil
}

// replaces reports whether saved is a new instance of the immutable entity
// original points to.
func (s *saveOperation) replaces(saved, original reflect.Value) bool {
	if !saved.IsValid() || saved.Pointer() == original.Pointer() {
		return false
	}
	e, ok := s.t.schema.EntityFor(original.Type())
	return ok && e.IsImmutable()
}

// target returns the instance a related entity was saved as and the element
// id of its node. The entity is saved when it is new or the relationship
// cascades updates.
func (s *saveOperation) target(ctx context.Context, rel *schema.RelationshipDescriptor, entity reflect.Value) (reflect.Value, any, error) {
	if id, ok := s.state.InternalID(entity.Interface()); ok {
		return reflect.ValueOf(s.state.ProcessedAs(entity.Interface())), id, nil
	}
	e, ok := s.t.schema.EntityFor(entity.Type())
	if !ok {
		return reflect.Value{}, nil, fmt.Errorf("%w: %s", schema.ErrUnknownEntity, entity.Type())
	}
	if rel.CascadesUpdates() || e.IsNew(entity) {
		return s.node(ctx, entity)
	}

	id, err := s.t.converter.IDParameter(e, entity)
	if err != nil {
		return reflect.Value{}, nil, err
	}
	query := s.t.generator.PrepareMatchOf(e, s.t.generator.IDCondition(e)).
		Return(s.t.generator.ElementID(cypher.RootNodeName) + " AS " + cypher.NameOfElementID).
		Build()
	result, err := s.run(ctx, query, map[string]any{cypher.NameOfID: id})
	if err != nil {
		return reflect.Value{}, nil, err
	}
	if len(result.Records) == 0 {
		return reflect.Value{}, nil, fmt.Errorf("related %s with id %v: %w", e.Name(), id, ErrNotFound)
	}
	elementID, _ := result.Records[0].Get(cypher.NameOfElementID)
	if err := s.state.MarkValueAsProcessed(entity.Interface(), elementID); err != nil {
		return reflect.Value{}, nil, err
	}
	return entity, elementID, nil
}

// removeObsolete deletes the stored edges of rel that are not in links.
func (s *saveOperation) removeObsolete(ctx context.Context, rel *schema.RelationshipDescriptor, ownerID any, links []link) error {
	keep := make([]any, 0, len(links))
	for _, l := range links {
		if !rel.HasRelationshipProperties() {
			keep = append(keep, l.targetID)
			continue
		}
		props := rel.RelationshipPropertiesEntity()
		if props.IsNew(l.Properties) {
			continue
		}
		id, err := s.t.converter.IDParameter(props, l.Properties)
		if err != nil {
			return err
		}
		if id != nil {
			keep = append(keep, id)
		}
	}
	_, err := s.run(ctx, s.t.generator.CreateRelationshipRemoveQuery(rel), map[string]any{
		cypher.FromID:                   ownerID,
		cypher.NameOfKnownRelationships: keep,
	})
	return err
}

// create merges the plain edges of rel, one statement per relationship type.
func (s *saveOperation) create(ctx context.Context, rel *schema.RelationshipDescriptor, ownerID any, links []link) error {
	sourceID := fmt.Sprint(ownerID)
	var types []string
	byType := map[string][]any{}
	for _, l := range links {
		targetID := fmt.Sprint(l.targetID)
		if s.state.HasProcessedEdge(sourceID, targetID, l.Type, rel) {
			continue
		}
		s.state.MarkEdgeAsProcessed(sourceID, targetID, l.Type, rel)
		if _, ok := byType[l.Type]; !ok {
			types = append(types, l.Type)
		}
		byType[l.Type] = append(byType[l.Type], l.targetID)
	}

	for _, typ := range types {
		targets := byType[typ]
		if len(targets) == 1 {
			query, err := s.t.generator.CreateRelationshipCreationQuery(rel, typ)
			if err != nil {
				return err
			}
			if _, err := s.run(ctx, query, map[string]any{cypher.FromID: ownerID, cypher.ToID: targets[0]}); err != nil {
				return err
			}
			continue
		}
		query, err := s.t.generator.CreateBatchRelationshipCreationQuery(rel, typ)
		if err != nil {
			return err
		}
		rows := make([]any, len(targets))
		for i, target := range targets {
			rows[i] = map[string]any{cypher.FromID: ownerID, cypher.ToID: target}
		}
		if _, err := s.run(ctx, query, map[string]any{cypher.NameOfRelationships: rows}); err != nil {
			return err
		}
	}
	return nil
}

// createWithProperties writes the edges of a relationship carrying
// properties. Stored edges are updated one by one; new edges of the same type
// are created together and get their ids assigned from the returned rows.
func (s *saveOperation) createWithProperties(ctx context.Context, rel *schema.RelationshipDescriptor, ownerID any, links []link) error {
	props := rel.RelationshipPropertiesEntity()
	sourceID := fmt.Sprint(ownerID)
	var types []string
	fresh := map[string][]link{}

	for _, l := range links {
		instance := l.Properties.Interface()
		if s.state.HasProcessedValue(instance) {
			continue
		}
		if err := s.state.MarkValueAsProcessed(instance, nil); err != nil {
			return err
		}
		s.state.MarkEdgeAsProcessed(sourceID, fmt.Sprint(l.targetID), l.Type, rel)

		if props.IsNew(l.Properties) {
			if _, ok := fresh[l.Type]; !ok {
				types = append(types, l.Type)
			}
			fresh[l.Type] = append(fresh[l.Type], l)
			continue
		}
		if err := s.updateEdge(ctx, rel, props, ownerID, l); err != nil {
			return err
		}
	}

	for _, typ := range types {
		if err := s.createEdges(ctx, rel, props, ownerID, typ, fresh[typ]); err != nil {
			return err
		}
	}
	return nil
}

func (s *saveOperation) edgeParameters(props *schema.EntityDescriptor, l link) (map[string]any, error) {
	if _, err := s.t.converter.GenerateID(props, l.Properties); err != nil {
		return nil, err
	}
	values, err := s.t.converter.Properties(props, l.Properties)
	if err != nil {
		return nil, err
	}
	return map[string]any{cypher.ToID: l.targetID, cypher.NameOfProperties: values}, nil
}

func (s *saveOperation) updateEdge(ctx context.Context, rel *schema.RelationshipDescriptor, props *schema.EntityDescriptor, ownerID any, l link) error {
	query, err := s.t.generator.CreateRelationshipWithPropertiesCreationQuery(rel, l.Type, false)
	if err != nil {
		return err
	}
	params, err := s.edgeParameters(props, l)
	if err != nil {
		return err
	}
	id, err := s.t.converter.IDParameter(props, l.Properties)
	if err != nil {
		return err
	}
	params[cypher.FromID] = ownerID
	params[cypher.NameOfID] = id
	result, err := s.run(ctx, query, params)
	if err != nil {
		return err
	}
	if len(result.Records) == 0 {
		return fmt.Errorf("relationship %s with id %v: %w", rel, id, ErrNotFound)
	}
	return nil
}

func (s *saveOperation) createEdges(ctx context.Context, rel *schema.RelationshipDescriptor, props *schema.EntityDescriptor, ownerID any, typ string, links []link) error {
	single := len(links) == 1
	var (
		query string
		err   error
	)
	if single {
		query, err = s.t.generator.CreateRelationshipWithPropertiesCreationQuery(rel, typ, true)
	} else {
		query, err = s.t.generator.CreateBatchRelationshipWithPropertiesCreationQuery(rel, typ)
	}
	if err != nil {
		return err
	}

	sourceID := fmt.Sprint(ownerID)
	rows := make([]any, 0, len(links))
	var params map[string]any
	for _, l := range links {
		p, err := s.edgeParameters(props, l)
		if err != nil {
			return err
		}
		p[cypher.FromID] = ownerID
		rows = append(rows, p)
		params = p

		instance := l.Properties
		s.state.RequireIDUpdate(query, sourceID, fmt.Sprint(l.targetID), func(id any) error {
			if props.IDProperty() == nil || instance.Kind() != reflect.Ptr {
				return nil
			}
			return s.t.converter.AssignID(props, instance, id)
		})
	}
	if !single {
		params = map[string]any{cypher.NameOfRelationships: rows}
	}

	result, err := s.run(ctx, query, params)
	if err != nil {
		return err
	}
	if len(result.Records) != len(links) {
		return fmt.Errorf("%w: created %d of %d relationships %s", savestate.ErrInvariant, len(result.Records), len(links), rel)
	}
	for _, row := range result.Records {
		from, to := ownerID, links[0].targetID
		if !single {
			from, _ = row.Get(cypher.FromID)
			to, _ = row.Get(cypher.ToID)
		}
		id, ok := row.Get(cypher.NameOfID)
		if !ok {
			id, _ = row.Get(cypher.NameOfElementID)
		}
		if err := s.state.UpdateRelationshipID(query, fmt.Sprint(from), fmt.Sprint(to), id); err != nil {
			return err
		}
	}
	return nil
}
