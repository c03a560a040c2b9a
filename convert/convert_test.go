package convert

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saulfrancisco-ruizacevedo/go-neoogm/schema"
)

type Status string

func TestReadScalars(t *testing.T) {
	c := New()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	id := uuid.New()

	tests := []struct {
		name   string
		value  any
		target any
		want   any
	}{
		{"int", int64(42), int(0), 42},
		{"int32", int64(7), int32(0), int32(7)},
		{"uint", int64(7), uint(0), uint(7)},
		{"float from int", int64(2), float64(0), float64(2)},
		{"float32", 1.5, float32(0), float32(1.5)},
		{"named string", "active", Status(""), Status("active")},
		{"bool", true, false, true},
		{"time", now, time.Time{}, now},
		{"date", dbtype.Date(now), time.Time{}, dbtype.Date(now).Time()},
		{"duration", dbtype.Duration{Days: 1, Seconds: 30}, time.Duration(0), 24*time.Hour + 30*time.Second},
		{"uuid", id.String(), uuid.UUID{}, id},
		{"string slice", []any{"a", "b"}, []string(nil), []string{"a", "b"}},
		{"vector", []any{0.5, 1.0}, []float32(nil), []float32{0.5, 1}},
		{"map", map[string]any{"x": int64(1)}, map[string]int(nil), map[string]int{"x": 1}},
		{"nil", nil, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Read(tt.value, reflect.TypeOf(tt.target))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Interface())
		})
	}
}

func TestReadPointer(t *testing.T) {
	got, err := New().Read("x", reflect.TypeOf((*string)(nil)))
	require.NoError(t, err)
	require.Equal(t, reflect.Ptr, got.Kind())
	assert.Equal(t, "x", got.Elem().String())
}

func TestReadErrors(t *testing.T) {
	c := New()
	tests := []struct {
		name   string
		value  any
		target any
	}{
		{"string to int", "1", 0},
		{"overflow", int64(300), int8(0)},
		{"negative uint", int64(-1), uint(0)},
		{"int to string", int64(1), ""},
		{"months", dbtype.Duration{Months: 1}, time.Duration(0)},
		{"bad uuid", "nope", uuid.UUID{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Read(tt.value, reflect.TypeOf(tt.target))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConversion))
		})
	}
}

func TestWrite(t *testing.T) {
	c := New()
	id := uuid.New()
	name := "n"

	tests := []struct {
		name  string
		value any
		want  any
	}{
		{"int", 3, int64(3)},
		{"uint8", uint8(3), int64(3)},
		{"float32", float32(0.5), float64(0.5)},
		{"named string", Status("x"), "x"},
		{"uuid", id, id.String()},
		{"pointer", &name, "n"},
		{"nil pointer", (*string)(nil), nil},
		{"duration", 90 * time.Second, dbtype.Duration{Seconds: 90}},
		{"slice", []string{"a"}, []any{"a"}},
		{"nil slice", []string(nil), nil},
		{"map", map[string]int{"a": 1}, map[string]any{"a": int64(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Write(reflect.ValueOf(tt.value))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := c.Write(reflect.ValueOf(struct{ A int }{1}))
	assert.ErrorIs(t, err, ErrConversion)
}

func TestCustomConverter(t *testing.T) {
	upper := Funcs{
		ReadFunc: func(v any) (any, error) {
			return Status(strings.ToLower(v.(string))), nil
		},
		WriteFunc: func(v any) (any, error) {
			return strings.ToUpper(string(v.(Status))), nil
		},
	}
	c := New(WithConverter(reflect.TypeOf(Status("")), upper))
	assert.True(t, c.HasConverter(reflect.TypeOf(Status(""))))

	written, err := c.Write(reflect.ValueOf(Status("active")))
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", written)

	read, err := c.Read("ACTIVE", reflect.TypeOf(Status("")))
	require.NoError(t, err)
	assert.Equal(t, Status("active"), read.Interface())
}

func TestComposite(t *testing.T) {
	type holder struct {
		ID    string            `ogm:"id"`
		Attrs map[string]string `ogm:"composite,prefix:attr,delimiter:_"`
	}
	ctx, err := schema.Build(&holder{})
	require.NoError(t, err)
	e, _ := ctx.Entity("holder")
	p, ok := e.Property("Attrs")
	require.True(t, ok)

	h := &holder{Attrs: map[string]string{"color": "red", "size": "L"}}
	flat, err := New().FlattenComposite(p, p.Value(reflect.ValueOf(h)))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"attr_color": "red", "attr_size": "L"}, flat)

	props := map[string]any{"attr_color": "red", "attr_size": "L", "name": "x"}
	assert.Equal(t, map[string]any{"color": "red", "size": "L"}, ExtractComposite(p, props))
	assert.Equal(t, []string{"attr_color", "attr_size"}, CompositeKeys(p, props))
}

func TestIdentity(t *testing.T) {
	n := dbtype.Node{Id: 7, ElementId: "4:abc:7"}
	assert.Equal(t, "N:4:abc:7", NodeIdentity(n))
	assert.Equal(t, "N:7", NodeIdentity(dbtype.Node{Id: 7}))

	r := dbtype.Relationship{Id: 3, ElementId: "5:abc:3", StartElementId: "4:abc:7", EndId: 9}
	assert.Equal(t, "R:OUTGOING:5:abc:3", RelationshipIdentity(r, schema.Outgoing))
	assert.Equal(t, "R:INCOMING:5:abc:3", RelationshipIdentity(r, schema.Incoming))
	assert.Equal(t, "4:abc:7", StartID(r))
	assert.Equal(t, "9", EndID(r))

	assert.Equal(t, int64(7), InternalID("4:abc:7", 7, true))
	assert.Equal(t, "4:abc:7", InternalID("4:abc:7", 7, false))

	_, ok := AsNode(n)
	assert.True(t, ok)
	_, ok = AsNode(r)
	assert.False(t, ok)
	_, ok = AsRelationship(&r)
	assert.True(t, ok)
}
