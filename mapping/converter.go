// Package mapping converts between entity instances and the rows and
// parameters exchanged with Neo4j.
//
// Reading keeps an identity map per result: every node and relationship is
// materialized at most once, so cyclic graphs come back as cyclic object
// graphs. Entities are built in two phases. They are instantiated first,
// through their constructor when they have one, and populated afterwards,
// which lets relationships refer back to entities still being populated.
package mapping

import (
	"reflect"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/saulfrancisco-ruizacevedo/go-neoogm/convert"
	"github.com/saulfrancisco-ruizacevedo/go-neoogm/schema"
)

// EntityConverter reads entities from records and writes them to statement
// parameters. It is safe for concurrent use; each read gets its own Reader.
type EntityConverter struct {
	schema      *schema.Context
	conversions *convert.Conversions
	logger      *zap.Logger
}

// Option configures an EntityConverter.
type Option func(*EntityConverter)

// WithConversions replaces the default property conversions.
func WithConversions(c *convert.Conversions) Option {
	return func(ec *EntityConverter) {
		ec.conversions = c
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(ec *EntityConverter) {
		ec.logger = logger
	}
}

// NewEntityConverter creates a converter for the entities of ctx.
func NewEntityConverter(ctx *schema.Context, opts ...Option) *EntityConverter {
	c := &EntityConverter{
		schema:      ctx,
		conversions: convert.New(),
		logger:      ctx.Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *EntityConverter) Schema() *schema.Context           { return c.schema }
func (c *EntityConverter) Conversions() *convert.Conversions { return c.conversions }

// ReadAll maps every record to an instance of e. Records describing the same
// node contribute to a single instance, returned once at the position of its
// first record.
func (c *EntityConverter) ReadAll(e *schema.EntityDescriptor, records []*neo4j.Record) ([]any, error) {
	r := c.NewReader(records)
	var out []any
	position := map[string]int{}
	for _, record := range records {
		v, identity, err := r.read(e, record)
		if err != nil {
			return nil, err
		}
		if identity != "" {
			if i, seen := position[identity]; seen {
				out[i] = v.Interface()
				continue
			}
			position[identity] = len(out)
		}
		out = append(out, v.Interface())
	}
	c.logger.Debug("mapped records",
		zap.String("entity", e.Name()),
		zap.Int("records", len(records)),
		zap.Int("entities", len(out)))
	return out, nil
}

// ReadAllAs is ReadAll for a statically known entity type.
func ReadAllAs[T any](c *EntityConverter, records []*neo4j.Record) ([]*T, error) {
	e, ok := c.schema.EntityFor(reflect.TypeOf((*T)(nil)).Elem())
	if !ok {
		return nil, &MappingError{Entity: reflect.TypeOf((*T)(nil)).Elem().String(), Cause: schema.ErrUnknownEntity}
	}
	values, err := c.ReadAll(e, records)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(values))
	for _, v := range values {
		t, ok := v.(*T)
		if !ok {
			// A concrete descriptor of another type was picked for the row.
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// NewReader returns a Reader sharing one identity map across records. Every
// node and relationship of records is pooled up front, so relationships
// spread over several rows are attached to the entities they belong to.
func (c *EntityConverter) NewReader(records []*neo4j.Record) *Reader {
	r := &Reader{
		c:           c,
		known:       newKnownObjects(),
		pool:        newPool(),
		collections: map[*schema.EntityDescriptor]map[string]bool{},
	}
	for _, record := range records {
		if record == nil {
			continue
		}
		for _, v := range record.Values {
			r.pool.add(v)
		}
	}
	return r
}
