package mapping

import (
	"fmt"
	"reflect"

	"github.com/saulfrancisco-ruizacevedo/go-neoogm/cypher"
	"github.com/saulfrancisco-ruizacevedo/go-neoogm/schema"
)

// Write returns the parameters of a save statement for entity: the
// properties map, the id and, for versioned entities, the current version.
func (c *EntityConverter) Write(e *schema.EntityDescriptor, entity any) (map[string]any, error) {
	v, err := pointerTo(e, entity)
	if err != nil {
		return nil, err
	}
	props, err := c.Properties(e, v)
	if err != nil {
		return nil, err
	}
	id, err := c.IDParameter(e, v)
	if err != nil {
		return nil, err
	}
	params := map[string]any{
		cypher.NameOfProperties: props,
		cypher.NameOfID:         id,
	}
	if e.HasVersionProperty() {
		version, err := c.conversions.Write(e.VersionProperty().Value(v))
		if err != nil {
			return nil, fmt.Errorf("version of %s: %w", e.Name(), err)
		}
		params[cypher.NameOfVersion] = version
	}
	return params, nil
}

// Properties returns the graph properties of entity. Composite properties are
// flattened; the id, labels and version are left out unless they are plain
// stored properties.
func (c *EntityConverter) Properties(e *schema.EntityDescriptor, entity reflect.Value) (map[string]any, error) {
	props := map[string]any{}
	for _, p := range e.Properties() {
		if !p.IsWritable() {
			continue
		}
		field := p.Value(entity)
		if !field.IsValid() {
			continue
		}
		if p.IsComposite() {
			flat, err := c.conversions.FlattenComposite(p, field)
			if err != nil {
				return nil, fmt.Errorf("property %s of %s: %w", p.FieldName(), e.Name(), err)
			}
			for k, val := range flat {
				props[k] = val
			}
			continue
		}
		val, err := c.conversions.Write(field)
		if err != nil {
			return nil, fmt.Errorf("property %s of %s: %w", p.FieldName(), e.Name(), err)
		}
		props[p.GraphPropertyName()] = val
	}
	return props, nil
}

// IDParameter returns the id of entity as sent to the database, nil for an
// entity whose internal id has not been assigned yet.
func (c *EntityConverter) IDParameter(e *schema.EntityDescriptor, entity reflect.Value) (any, error) {
	idp := e.IDProperty()
	if idp == nil {
		return nil, nil
	}
	field := idp.Value(entity)
	if !field.IsValid() || (e.IsUsingInternalIDs() && field.IsZero()) {
		return nil, nil
	}
	return c.conversions.Write(field)
}

// AssignID stores an id returned by the database into the id field.
func (c *EntityConverter) AssignID(e *schema.EntityDescriptor, entity reflect.Value, raw any) error {
	idp := e.IDProperty()
	if idp == nil {
		return nil
	}
	return c.assign(e, idp, entity, raw)
}

// AssignVersion stores the version returned by the database.
func (c *EntityConverter) AssignVersion(e *schema.EntityDescriptor, entity reflect.Value, raw any) error {
	if !e.HasVersionProperty() {
		return nil
	}
	return c.assign(e, e.VersionProperty(), entity, raw)
}

func (c *EntityConverter) assign(e *schema.EntityDescriptor, p *schema.PropertyDescriptor, entity reflect.Value, raw any) error {
	field := p.Value(entity)
	if !field.CanSet() {
		return fmt.Errorf("field %s of %s cannot be set", p.FieldName(), e.Name())
	}
	v, err := c.conversions.Read(raw, field.Type())
	if err != nil {
		return fmt.Errorf("field %s of %s: %w", p.FieldName(), e.Name(), err)
	}
	field.Set(v)
	return nil
}

// GenerateID fills the id of an entity using an external generator when the
// id is still zero. It reports whether an id was generated.
func (c *EntityConverter) GenerateID(e *schema.EntityDescriptor, entity reflect.Value) (bool, error) {
	id := e.IDDescriptor()
	if id == nil || !id.IsExternallyGenerated() {
		return false, nil
	}
	field := e.IDProperty().Value(entity)
	if !field.IsValid() || !field.IsZero() {
		return false, nil
	}
	generator, ok := c.schema.IDGenerator(id.GeneratorName())
	if !ok {
		return false, fmt.Errorf("%w: id generator %q of %s", schema.ErrInvalidIDConfiguration, id.GeneratorName(), e.Name())
	}
	generated, err := generator.Generate(e.PrimaryLabel(), entity.Interface())
	if err != nil {
		return false, fmt.Errorf("generating id of %s: %w", e.Name(), err)
	}
	if err := c.assign(e, e.IDProperty(), entity, generated); err != nil {
		return false, err
	}
	return true, nil
}

// DynamicLabels returns the labels held by the dynamic labels field.
func (c *EntityConverter) DynamicLabels(e *schema.EntityDescriptor, entity reflect.Value) []string {
	p := e.DynamicLabelsProperty()
	if p == nil {
		return nil
	}
	field := p.Value(entity)
	if !field.IsValid() || field.Kind() != reflect.Slice {
		return nil
	}
	out := make([]string, 0, field.Len())
	for i := 0; i < field.Len(); i++ {
		out = append(out, field.Index(i).String())
	}
	return out
}

// pointerTo returns entity as a pointer to a struct e can describe.
func pointerTo(e *schema.EntityDescriptor, entity any) (reflect.Value, error) {
	v := reflect.ValueOf(entity)
	if !v.IsValid() || v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%w: %s expects a non-nil struct pointer, got %T", ErrConversion, e.Name(), entity)
	}
	return v, nil
}
