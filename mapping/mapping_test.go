package mapping

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saulfrancisco-ruizacevedo/go-neoogm/convert"
	"github.com/saulfrancisco-ruizacevedo/go-neoogm/cypher"
	"github.com/saulfrancisco-ruizacevedo/go-neoogm/schema"
)

type Person struct {
	_     struct{} `ogm:"node,labels:Person"`
	ID    string   `ogm:"id,property:id"`
	Name  string   `ogm:"property:name"`
	Age   int      `ogm:"property:age"`
	Knows []*Person
}

type Animal struct {
	_     struct{} `ogm:"node,labels:Animal"`
	ID    string   `ogm:"id,property:id"`
	Name  string   `ogm:"property:name"`
	Extra []string `ogm:"dynamicLabels"`
}

type Dog struct {
	Animal `ogm:"parent"`
	_      struct{} `ogm:"node,labels:Dog"`
	Breed  string   `ogm:"property:breed"`
}

type Movie struct {
	_      struct{}   `ogm:"node"`
	Title  string     `ogm:"id,property:title"`
	Actors []*ActedIn `ogm:"rel:ACTED_IN,dir:in"`
}

type Actor struct {
	_    struct{} `ogm:"node"`
	Name string   `ogm:"id,property:name"`
}

type ActedIn struct {
	_     struct{} `ogm:"relationshipProperties"`
	ID    string   `ogm:"id,generated"`
	Roles []string `ogm:"property:roles"`
	Actor *Actor   `ogm:"targetNode"`
}

type Item struct {
	_         struct{}          `ogm:"node"`
	ID        string            `ogm:"id,property:id"`
	Version   int64             `ogm:"version"`
	Attrs     map[string]string `ogm:"composite,prefix:attr"`
	Embedding []float64         `ogm:"vector"`
}

type Snapshot struct {
	_    struct{} `ogm:"node,immutable"`
	ID   string   `ogm:"id,property:id"`
	Name string   `ogm:"property:name"`
	Age  int      `ogm:"property:age"`
}

type Linked struct {
	_    struct{} `ogm:"node"`
	ID   string   `ogm:"id,property:id"`
	Next []*Linked
}

type Ticket struct {
	_    struct{} `ogm:"node"`
	ID   string   `ogm:"id,generated:uuid"`
	Note string
}

func node(id int64, labels []string, props map[string]any) dbtype.Node {
	return dbtype.Node{Id: id, ElementId: fmt.Sprintf("4:db:%d", id), Labels: labels, Props: props}
}

func testEdge(id int64, typ string, from, to dbtype.Node, props map[string]any) dbtype.Relationship {
	return dbtype.Relationship{
		Id:             id,
		ElementId:      fmt.Sprintf("5:db:%d", id),
		StartId:        from.Id,
		StartElementId: from.ElementId,
		EndId:          to.Id,
		EndElementId:   to.ElementId,
		Type:           typ,
		Props:          props,
	}
}

func record(pairs ...any) *neo4j.Record {
	r := &neo4j.Record{}
	for i := 0; i < len(pairs); i += 2 {
		r.Keys = append(r.Keys, pairs[i].(string))
		r.Values = append(r.Values, pairs[i+1])
	}
	return r
}

func converterFor(t *testing.T, samples ...any) (*EntityConverter, *schema.Context) {
	t.Helper()
	ctx, err := schema.Build(samples...)
	require.NoError(t, err)
	return NewEntityConverter(ctx), ctx
}

func entityOf(t *testing.T, ctx *schema.Context, sample any) *schema.EntityDescriptor {
	t.Helper()
	e, ok := ctx.EntityOf(sample)
	require.True(t, ok)
	return e
}

func TestReadNodeProperties(t *testing.T) {
	c, ctx := converterFor(t, &Person{})
	alice := node(1, []string{"Person"}, map[string]any{"id": "a", "name": "Alice", "age": int64(30)})

	got, err := c.ReadAll(entityOf(t, ctx, &Person{}), []*neo4j.Record{record("p", alice)})
	require.NoError(t, err)
	require.Len(t, got, 1)

	p := got[0].(*Person)
	assert.Equal(t, "a", p.ID)
	assert.Equal(t, "Alice", p.Name)
	assert.Equal(t, 30, p.Age)
	assert.Empty(t, p.Knows)
}

func TestReadSynthesizedCycleSharesInstances(t *testing.T) {
	c, ctx := converterFor(t, &Person{})
	a := node(1, []string{"Person"}, map[string]any{"id": "a", "name": "Alice"})
	b := node(2, []string{"Person"}, map[string]any{"id": "b", "name": "Bob"})
	ab := testEdge(10, "KNOWS", a, b, nil)
	ba := testEdge(11, "KNOWS", b, a, nil)

	rec := record(
		cypher.NameOfSynthesizedRootNode, a,
		cypher.NameOfSynthesizedRelationships, []any{ab, ba},
		cypher.NameOfSynthesizedRelatedNodes, []any{b},
	)
	got, err := c.ReadAll(entityOf(t, ctx, &Person{}), []*neo4j.Record{rec})
	require.NoError(t, err)
	require.Len(t, got, 1)

	alice := got[0].(*Person)
	require.Len(t, alice.Knows, 1)
	bob := alice.Knows[0]
	assert.Equal(t, "Bob", bob.Name)
	require.Len(t, bob.Knows, 1)
	assert.Same(t, alice, bob.Knows[0])
}

func TestReadProjectionWithRelationshipProperties(t *testing.T) {
	c, ctx := converterFor(t, &Movie{})
	row := map[string]any{
		"title":                "Heat",
		cypher.NameOfLabels:    []any{"Movie"},
		cypher.NameOfElementID: "4:db:1",
		"Movie_Actors_Actor": []any{
			map[string]any{
				"name":                        "Al",
				cypher.NameOfLabels:           []any{"Actor"},
				cypher.NameOfElementID:        "4:db:2",
				cypher.NameOfRelationshipType: "ACTED_IN",
				cypher.NameOfRelationship: map[string]any{
					"roles":                []any{"McCauley"},
					cypher.NameOfElementID: "5:db:9",
				},
			},
		},
	}

	got, err := c.ReadAll(entityOf(t, ctx, &Movie{}), []*neo4j.Record{record("n", row)})
	require.NoError(t, err)
	require.Len(t, got, 1)

	m := got[0].(*Movie)
	assert.Equal(t, "Heat", m.Title)
	require.Len(t, m.Actors, 1)
	assert.Equal(t, "5:db:9", m.Actors[0].ID)
	assert.Equal(t, []string{"McCauley"}, m.Actors[0].Roles)
	require.NotNil(t, m.Actors[0].Actor)
	assert.Equal(t, "Al", m.Actors[0].Actor.Name)
}

func TestReadAllPoolsRelationshipsAcrossRows(t *testing.T) {
	c, ctx := converterFor(t, &Movie{})
	m := node(1, []string{"Movie"}, map[string]any{"title": "Heat"})
	al := node(2, []string{"Actor"}, map[string]any{"name": "Al"})
	bob := node(3, []string{"Actor"}, map[string]any{"name": "Robert"})
	r1 := testEdge(20, "ACTED_IN", al, m, map[string]any{"roles": []any{"McCauley"}})
	r2 := testEdge(21, "ACTED_IN", bob, m, map[string]any{"roles": []any{"Hanna"}})

	got, err := c.ReadAll(entityOf(t, ctx, &Movie{}), []*neo4j.Record{
		record("m", m, "r", r1, "a", al),
		record("m", m, "r", r2, "a", bob),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)

	movie := got[0].(*Movie)
	require.Len(t, movie.Actors, 2)
	assert.Equal(t, "Al", movie.Actors[0].Actor.Name)
	assert.Equal(t, []string{"McCauley"}, movie.Actors[0].Roles)
	assert.Equal(t, "Robert", movie.Actors[1].Actor.Name)
	assert.Equal(t, "5:db:21", movie.Actors[1].ID)
}

func TestReadPopulatesIncrementally(t *testing.T) {
	c, ctx := converterFor(t, &Person{})
	e := entityOf(t, ctx, &Person{})
	first := map[string]any{"id": "a", "name": "Alice", cypher.NameOfElementID: "4:db:1", cypher.NameOfLabels: []any{"Person"}}
	second := map[string]any{"id": "a", "age": int64(41), cypher.NameOfElementID: "4:db:1", cypher.NameOfLabels: []any{"Person"}}
	union := map[string]any{"id": "a", "name": "Alice", "age": int64(41), cypher.NameOfElementID: "4:db:1", cypher.NameOfLabels: []any{"Person"}}

	got, err := c.ReadAll(e, []*neo4j.Record{record("n", first), record("n", second)})
	require.NoError(t, err)
	require.Len(t, got, 1)

	whole, err := c.ReadAll(e, []*neo4j.Record{record("n", union)})
	require.NoError(t, err)
	require.Len(t, whole, 1)
	assert.Equal(t, whole[0], got[0])
	p := got[0].(*Person)
	assert.Equal(t, "Alice", p.Name)
	assert.Equal(t, 41, p.Age)
}

func TestReadWhatWasWritten(t *testing.T) {
	c, ctx := converterFor(t, &Movie{})
	movieEntity := entityOf(t, ctx, &Movie{})
	actorEntity := entityOf(t, ctx, &Actor{})
	actedInEntity := entityOf(t, ctx, &ActedIn{})

	movie := &Movie{Title: "Heat", Actors: []*ActedIn{
		{ID: "5:db:20", Roles: []string{"McCauley"}, Actor: &Actor{Name: "Robert"}},
		{ID: "5:db:21", Roles: []string{"Hanna"}, Actor: &Actor{Name: "Al"}},
	}}

	written, err := c.Write(movieEntity, movie)
	require.NoError(t, err)
	movieNode := node(1, []string{"Movie"}, written[cypher.NameOfProperties].(map[string]any))

	var records []*neo4j.Record
	for i, rel := range movie.Actors {
		actorProps, err := c.Write(actorEntity, rel.Actor)
		require.NoError(t, err)
		actorNode := node(int64(i+2), []string{"Actor"}, actorProps[cypher.NameOfProperties].(map[string]any))

		relProps, err := c.Properties(actedInEntity, reflect.ValueOf(rel))
		require.NoError(t, err)
		records = append(records, record("m", movieNode, "r", testEdge(int64(20+i), "ACTED_IN", actorNode, movieNode, relProps), "a", actorNode))
	}

	got, err := c.ReadAll(movieEntity, records)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, movie, got[0])
}

func TestReadCopiesImmutableEntitiesOnUpdate(t *testing.T) {
	c, ctx := converterFor(t, &Snapshot{})
	e := entityOf(t, ctx, &Snapshot{})
	first := record("n", map[string]any{"id": "s", "name": "v1", cypher.NameOfElementID: "4:db:7"})
	second := record("n", map[string]any{"id": "s", "age": int64(2), cypher.NameOfElementID: "4:db:7"})

	r := c.NewReader([]*neo4j.Record{first, second})
	v1, err := r.Read(e, first)
	require.NoError(t, err)
	v2, err := r.Read(e, second)
	require.NoError(t, err)

	assert.NotSame(t, v1, v2)
	assert.Equal(t, 0, v1.(*Snapshot).Age)
	assert.Equal(t, "v1", v2.(*Snapshot).Name)
	assert.Equal(t, 2, v2.(*Snapshot).Age)
}

func TestReadPrefersUnseenRoot(t *testing.T) {
	c, ctx := converterFor(t, &Person{})
	a := node(1, []string{"Person"}, map[string]any{"id": "a"})
	b := node(2, []string{"Person"}, map[string]any{"id": "b"})

	got, err := c.ReadAll(entityOf(t, ctx, &Person{}), []*neo4j.Record{
		record("x", a),
		record("x", a, "y", b),
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].(*Person).ID)
	assert.Equal(t, "b", got[1].(*Person).ID)
}

func TestReadRootErrors(t *testing.T) {
	c, ctx := converterFor(t, &Person{})
	e := entityOf(t, ctx, &Person{})
	a := node(1, []string{"Person"}, map[string]any{"id": "a"})
	b := node(2, []string{"Person"}, map[string]any{"id": "b"})

	_, err := c.ReadAll(e, []*neo4j.Record{record("x", a, "y", b)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAmbiguousRootNode))
	var me *MappingError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "Person", me.Entity)
	assert.Contains(t, me.Row, "Person")

	_, err = c.ReadAll(e, []*neo4j.Record{record("count", int64(3))})
	assert.True(t, errors.Is(err, ErrNoRootNode))
}

func TestReadDerivesConcreteTypeAndDynamicLabels(t *testing.T) {
	c, ctx := converterFor(t, &Animal{}, &Dog{})
	rex := node(5, []string{"Animal", "Dog", "Good"}, map[string]any{"id": "rex", "name": "Rex", "breed": "Collie"})

	got, err := c.ReadAll(entityOf(t, ctx, &Animal{}), []*neo4j.Record{record("a", rex)})
	require.NoError(t, err)
	require.Len(t, got, 1)

	dog, ok := got[0].(*Dog)
	require.True(t, ok, "got %T", got[0])
	assert.Equal(t, "Rex", dog.Name)
	assert.Equal(t, "Collie", dog.Breed)
	assert.Equal(t, []string{"Good"}, dog.Extra)
}

func linkedContext(t *testing.T) *schema.Context {
	t.Helper()
	defs, err := schema.Discover(&Linked{})
	require.NoError(t, err)
	defs[0].Constructor = &schema.Constructor{
		Parameters: []string{"ID", "Next"},
		New: func(args map[string]any) (any, error) {
			return &Linked{ID: args["ID"].(string), Next: args["Next"].([]*Linked)}, nil
		},
	}
	ctx, err := schema.NewContext(defs)
	require.NoError(t, err)
	return ctx
}

func TestReadThroughConstructor(t *testing.T) {
	ctx := linkedContext(t)
	c := NewEntityConverter(ctx)
	a := node(1, []string{"Linked"}, map[string]any{"id": "a"})
	b := node(2, []string{"Linked"}, map[string]any{"id": "b"})
	ab := testEdge(30, "NEXT", a, b, nil)

	e := entityOf(t, ctx, &Linked{})
	got, err := c.ReadAll(e, []*neo4j.Record{record(cypher.NameOfSynthesizedRootNode, a, cypher.NameOfSynthesizedRelationships, []any{ab}, cypher.NameOfSynthesizedRelatedNodes, []any{b})})
	require.NoError(t, err)
	require.Len(t, got, 1)
	first := got[0].(*Linked)
	require.Len(t, first.Next, 1)
	assert.Equal(t, "b", first.Next[0].ID)
	assert.Empty(t, first.Next[0].Next)
}

func TestReadCyclicConstructorFails(t *testing.T) {
	ctx := linkedContext(t)
	c := NewEntityConverter(ctx)
	a := node(1, []string{"Linked"}, map[string]any{"id": "a"})
	b := node(2, []string{"Linked"}, map[string]any{"id": "b"})
	ab := testEdge(30, "NEXT", a, b, nil)
	ba := testEdge(31, "NEXT", b, a, nil)

	e := entityOf(t, ctx, &Linked{})
	_, err := c.ReadAll(e, []*neo4j.Record{record(cypher.NameOfSynthesizedRootNode, a, cypher.NameOfSynthesizedRelationships, []any{ab, ba}, cypher.NameOfSynthesizedRelatedNodes, []any{b})})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCyclicMappingDependency))
}

func TestReadConversionFailure(t *testing.T) {
	c, ctx := converterFor(t, &Person{})
	bad := node(1, []string{"Person"}, map[string]any{"id": "a", "age": "old"})

	_, err := c.ReadAll(entityOf(t, ctx, &Person{}), []*neo4j.Record{record("p", bad)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConversion))
}

func TestReaderForgetsFailedEntities(t *testing.T) {
	c, ctx := converterFor(t, &Person{})
	e := entityOf(t, ctx, &Person{})
	bad := node(1, []string{"Person"}, map[string]any{"id": "a", "name": "Alice", "age": "old"})
	good := node(1, []string{"Person"}, map[string]any{"id": "a", "name": "Alice", "age": int64(30)})

	r := c.NewReader([]*neo4j.Record{record("p", bad), record("p", good)})
	_, err := r.Read(e, record("p", bad))
	require.ErrorIs(t, err, ErrConversion)
	assert.False(t, r.known.contains(convert.NodeIdentity(bad)))

	got, err := r.Read(e, record("p", good))
	require.NoError(t, err)
	assert.Equal(t, 30, got.(*Person).Age)
}

func TestReadComposite(t *testing.T) {
	c, ctx := converterFor(t, &Item{})
	n := node(1, []string{"Item"}, map[string]any{"id": "i", "Version": int64(2), "attr.color": "red", "attr.size": "L"})

	got, err := c.ReadAll(entityOf(t, ctx, &Item{}), []*neo4j.Record{record("n", n)})
	require.NoError(t, err)
	item := got[0].(*Item)
	assert.Equal(t, int64(2), item.Version)
	assert.Equal(t, map[string]string{"color": "red", "size": "L"}, item.Attrs)
}

func TestWriteParameters(t *testing.T) {
	c, ctx := converterFor(t, &Item{})
	item := &Item{ID: "i", Version: 3, Attrs: map[string]string{"color": "red"}, Embedding: []float64{0.5, 1}}

	params, err := c.Write(entityOf(t, ctx, &Item{}), item)
	require.NoError(t, err)
	assert.Equal(t, "i", params[cypher.NameOfID])
	assert.Equal(t, int64(3), params[cypher.NameOfVersion])
	assert.Equal(t, map[string]any{
		"id":         "i",
		"attr.color": "red",
		"Embedding":  []any{0.5, 1.0},
	}, params[cypher.NameOfProperties])

	_, err = c.Write(entityOf(t, ctx, &Item{}), Item{})
	assert.True(t, errors.Is(err, ErrConversion))
}

func TestWriteInternalIDIsNilUntilAssigned(t *testing.T) {
	c, ctx := converterFor(t, &Movie{})
	e := entityOf(t, ctx, &ActedIn{})
	rel := &ActedIn{Roles: []string{"Neil"}}

	params, err := c.Write(e, rel)
	require.NoError(t, err)
	assert.Nil(t, params[cypher.NameOfID])
	assert.Equal(t, map[string]any{"roles": []any{"Neil"}}, params[cypher.NameOfProperties])

	require.NoError(t, c.AssignID(e, reflect.ValueOf(rel), "5:db:1"))
	assert.Equal(t, "5:db:1", rel.ID)
}

func TestGenerateID(t *testing.T) {
	c, ctx := converterFor(t, &Ticket{})
	e := entityOf(t, ctx, &Ticket{})
	ticket := &Ticket{Note: "n"}

	generated, err := c.GenerateID(e, reflect.ValueOf(ticket))
	require.NoError(t, err)
	assert.True(t, generated)
	assert.Len(t, ticket.ID, 36)

	before := ticket.ID
	generated, err = c.GenerateID(e, reflect.ValueOf(ticket))
	require.NoError(t, err)
	assert.False(t, generated)
	assert.Equal(t, before, ticket.ID)
}

func TestRelatedValueOfShapes(t *testing.T) {
	_, ctx := converterFor(t, &Person{}, &Movie{})
	knows, _ := entityOf(t, ctx, &Person{}).Relationship("Knows")
	bob := &Person{ID: "b"}
	alice := &Person{ID: "a", Knows: []*Person{bob, nil}}

	v := RelatedValueOf(knows, reflect.ValueOf(alice))
	list, ok := v.(List)
	require.True(t, ok)
	require.Len(t, list.Entities, 1)

	related := Related(knows, v)
	require.Len(t, related, 1)
	assert.Equal(t, "KNOWS", related[0].Type)
	assert.Same(t, bob, related[0].Entity.Interface())

	actors, _ := entityOf(t, ctx, &Movie{}).Relationship("Actors")
	movie := &Movie{Actors: []*ActedIn{{Roles: []string{"x"}, Actor: &Actor{Name: "Al"}}, {Roles: []string{"orphan"}}}}
	related = Related(actors, RelatedValueOf(actors, reflect.ValueOf(movie)))
	require.Len(t, related, 1)
	assert.Equal(t, "Al", related[0].Entity.Interface().(*Actor).Name)
	assert.True(t, related[0].Properties.IsValid())
}
