// Package convert translates single values between the Go types of entity
// fields and the values the Neo4j driver sends and accepts, and derives the
// element identities of graph records.
package convert

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// ErrConversion is wrapped by every conversion failure.
var ErrConversion = errors.New("conversion failed")

// ConversionError describes a value that could not be converted.
type ConversionError struct {
	Value  any
	Target string
	Reason string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot convert %T to %s: %s", e.Value, e.Target, e.Reason)
}

func (e *ConversionError) Unwrap() error { return ErrConversion }

// Converter converts values of one Go type that the built-in rules do not
// cover, or covers differently than wanted.
type Converter interface {
	// Read turns a driver value into a value of the registered type.
	Read(graphValue any) (any, error)
	// Write turns a value of the registered type into a driver value.
	Write(value any) (any, error)
}

// Funcs adapts a pair of functions to Converter.
type Funcs struct {
	ReadFunc  func(graphValue any) (any, error)
	WriteFunc func(value any) (any, error)
}

func (f Funcs) Read(v any) (any, error)  { return f.ReadFunc(v) }
func (f Funcs) Write(v any) (any, error) { return f.WriteFunc(v) }

// Conversions holds the custom converters of one mapping context.
type Conversions struct {
	custom map[reflect.Type]Converter
}

// Option configures Conversions.
type Option func(*Conversions)

// WithConverter registers c for values of type typ.
func WithConverter(typ reflect.Type, c Converter) Option {
	return func(cs *Conversions) {
		cs.custom[typ] = c
	}
}

// New returns the built-in conversions extended by opts.
func New(opts ...Option) *Conversions {
	c := &Conversions{custom: map[reflect.Type]Converter{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasConverter reports whether a custom converter is registered for typ.
func (c *Conversions) HasConverter(typ reflect.Type) bool {
	_, ok := c.custom[typ]
	return ok
}

var (
	timeType     = reflect.TypeOf(time.Time{})
	durationType = reflect.TypeOf(time.Duration(0))
	uuidType     = reflect.TypeOf(uuid.UUID{})
	bytesType    = reflect.TypeOf([]byte(nil))
)

// Read converts a driver value into a value of type target. A nil value
// yields the zero value of target.
func (c *Conversions) Read(value any, target reflect.Type) (reflect.Value, error) {
	if conv, ok := c.custom[target]; ok {
		v, err := conv.Read(value)
		if err != nil {
			return reflect.Value{}, &ConversionError{Value: value, Target: target.String(), Reason: err.Error()}
		}
		if v == nil {
			return reflect.Zero(target), nil
		}
		rv := reflect.ValueOf(v)
		if !rv.Type().AssignableTo(target) {
			return reflect.Value{}, &ConversionError{Value: v, Target: target.String(), Reason: "custom converter returned the wrong type"}
		}
		return rv, nil
	}
	if value == nil {
		return reflect.Zero(target), nil
	}

	switch target.Kind() {
	case reflect.Ptr:
		elem, err := c.Read(value, target.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(target.Elem())
		p.Elem().Set(elem)
		return p, nil
	case reflect.Interface:
		rv := reflect.ValueOf(value)
		if rv.Type().AssignableTo(target) {
			return rv, nil
		}
		return reflect.Value{}, &ConversionError{Value: value, Target: target.String(), Reason: "not assignable"}
	}

	switch target {
	case timeType:
		return readTime(value)
	case durationType:
		return readDuration(value)
	case uuidType:
		s, ok := value.(string)
		if !ok {
			return reflect.Value{}, &ConversionError{Value: value, Target: "uuid.UUID", Reason: "expected a string"}
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return reflect.Value{}, &ConversionError{Value: value, Target: "uuid.UUID", Reason: err.Error()}
		}
		return reflect.ValueOf(id), nil
	}

	rv := reflect.ValueOf(value)
	if rv.Type() == target {
		return rv, nil
	}

	switch target.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := value.(int64)
		if !ok {
			return reflect.Value{}, &ConversionError{Value: value, Target: target.String(), Reason: "expected an integer"}
		}
		out := reflect.New(target).Elem()
		if out.OverflowInt(n) {
			return reflect.Value{}, &ConversionError{Value: value, Target: target.String(), Reason: "overflow"}
		}
		out.SetInt(n)
		return out, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, ok := value.(int64)
		if !ok || n < 0 {
			return reflect.Value{}, &ConversionError{Value: value, Target: target.String(), Reason: "expected a non-negative integer"}
		}
		out := reflect.New(target).Elem()
		if out.OverflowUint(uint64(n)) {
			return reflect.Value{}, &ConversionError{Value: value, Target: target.String(), Reason: "overflow"}
		}
		out.SetUint(uint64(n))
		return out, nil
	case reflect.Float32, reflect.Float64:
		var f float64
		switch n := value.(type) {
		case float64:
			f = n
		case int64:
			f = float64(n)
		default:
			return reflect.Value{}, &ConversionError{Value: value, Target: target.String(), Reason: "expected a number"}
		}
		out := reflect.New(target).Elem()
		out.SetFloat(f)
		return out, nil
	case reflect.String, reflect.Bool:
		if rv.Kind() != target.Kind() {
			return reflect.Value{}, &ConversionError{Value: value, Target: target.String(), Reason: "kind mismatch"}
		}
		return rv.Convert(target), nil
	case reflect.Slice:
		if target == bytesType {
			b, ok := value.([]byte)
			if !ok {
				return reflect.Value{}, &ConversionError{Value: value, Target: "[]byte", Reason: "expected bytes"}
			}
			return reflect.ValueOf(b), nil
		}
		return c.readSlice(value, target)
	case reflect.Map:
		return c.readMap(value, target)
	}

	if rv.Type().ConvertibleTo(target) && rv.Kind() == target.Kind() {
		return rv.Convert(target), nil
	}
	return reflect.Value{}, &ConversionError{Value: value, Target: target.String(), Reason: "unsupported target type"}
}

func (c *Conversions) readSlice(value any, target reflect.Type) (reflect.Value, error) {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice {
		return reflect.Value{}, &ConversionError{Value: value, Target: target.String(), Reason: "expected a list"}
	}
	out := reflect.MakeSlice(target, rv.Len(), rv.Len())
	for i := 0; i < rv.Len(); i++ {
		elem, err := c.Read(rv.Index(i).Interface(), target.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		out.Index(i).Set(elem)
	}
	return out, nil
}

func (c *Conversions) readMap(value any, target reflect.Type) (reflect.Value, error) {
	m, ok := value.(map[string]any)
	if !ok || target.Key().Kind() != reflect.String {
		return reflect.Value{}, &ConversionError{Value: value, Target: target.String(), Reason: "expected a map keyed by string"}
	}
	out := reflect.MakeMapWithSize(target, len(m))
	for k, v := range m {
		elem, err := c.Read(v, target.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetMapIndex(reflect.ValueOf(k).Convert(target.Key()), elem)
	}
	return out, nil
}

func readTime(value any) (reflect.Value, error) {
	switch t := value.(type) {
	case time.Time:
		return reflect.ValueOf(t), nil
	case dbtype.Date:
		return reflect.ValueOf(t.Time()), nil
	case dbtype.LocalDateTime:
		return reflect.ValueOf(t.Time()), nil
	case dbtype.LocalTime:
		return reflect.ValueOf(t.Time()), nil
	case dbtype.Time:
		return reflect.ValueOf(t.Time()), nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return reflect.Value{}, &ConversionError{Value: value, Target: "time.Time", Reason: err.Error()}
		}
		return reflect.ValueOf(parsed), nil
	}
	return reflect.Value{}, &ConversionError{Value: value, Target: "time.Time", Reason: "not a temporal value"}
}

func readDuration(value any) (reflect.Value, error) {
	switch d := value.(type) {
	case dbtype.Duration:
		if d.Months != 0 {
			return reflect.Value{}, &ConversionError{Value: value, Target: "time.Duration", Reason: "durations with months have no fixed length"}
		}
		total := time.Duration(d.Days)*24*time.Hour + time.Duration(d.Seconds)*time.Second + time.Duration(d.Nanos)
		return reflect.ValueOf(total), nil
	case int64:
		return reflect.ValueOf(time.Duration(d)), nil
	}
	return reflect.Value{}, &ConversionError{Value: value, Target: "time.Duration", Reason: "not a duration"}
}

// Write converts v into a value the driver accepts as a parameter. Nil
// pointers, slices and maps become nil.
func (c *Conversions) Write(v reflect.Value) (any, error) {
	if !v.IsValid() {
		return nil, nil
	}
	if conv, ok := c.custom[v.Type()]; ok {
		out, err := conv.Write(v.Interface())
		if err != nil {
			return nil, &ConversionError{Value: v.Interface(), Target: "graph value", Reason: err.Error()}
		}
		return out, nil
	}

	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return nil, nil
		}
		return c.Write(v.Elem())
	}

	switch v.Type() {
	case timeType:
		return v.Interface().(time.Time), nil
	case durationType:
		d := v.Interface().(time.Duration)
		return dbtype.Duration{Seconds: int64(d / time.Second), Nanos: int(d % time.Second)}, nil
	case uuidType:
		return v.Interface().(uuid.UUID).String(), nil
	case bytesType:
		return v.Bytes(), nil
	}

	switch v.Kind() {
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := v.Uint()
		if u > math.MaxInt64 {
			return nil, &ConversionError{Value: v.Interface(), Target: "int64", Reason: "overflow"}
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	case reflect.String:
		return v.String(), nil
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return nil, nil
		}
		out := make([]any, v.Len())
		for i := range out {
			elem, err := c.Write(v.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = elem
		}
		return out, nil
	case reflect.Map:
		if v.IsNil() {
			return nil, nil
		}
		if v.Type().Key().Kind() != reflect.String {
			return nil, &ConversionError{Value: v.Interface(), Target: "map", Reason: "keys must be strings"}
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			elem, err := c.Write(iter.Value())
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = elem
		}
		return out, nil
	}
	return nil, &ConversionError{Value: v.Interface(), Target: "graph value", Reason: "unsupported type"}
}
