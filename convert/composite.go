package convert

import (
	"reflect"
	"sort"
	"strings"

	"github.com/saulfrancisco-ruizacevedo/go-neoogm/schema"
)

// FlattenComposite writes the map held by a composite property as individual
// graph properties named prefix+delimiter+key.
func (c *Conversions) FlattenComposite(p *schema.PropertyDescriptor, value reflect.Value) (map[string]any, error) {
	out := map[string]any{}
	for value.IsValid() && (value.Kind() == reflect.Ptr || value.Kind() == reflect.Interface) {
		if value.IsNil() {
			return out, nil
		}
		value = value.Elem()
	}
	if !value.IsValid() || value.Kind() != reflect.Map || value.IsNil() {
		return out, nil
	}
	iter := value.MapRange()
	for iter.Next() {
		written, err := c.Write(iter.Value())
		if err != nil {
			return nil, err
		}
		out[p.CompositeKey(iter.Key().String())] = written
	}
	return out, nil
}

// ExtractComposite collects the graph properties belonging to a composite
// property, keyed by the part after the prefix and delimiter.
func ExtractComposite(p *schema.PropertyDescriptor, props map[string]any) map[string]any {
	prefix := p.CompositePrefix() + p.CompositeDelimiter()
	out := map[string]any{}
	for k, v := range props {
		if strings.HasPrefix(k, prefix) {
			out[strings.TrimPrefix(k, prefix)] = v
		}
	}
	return out
}

// CompositeKeys returns the graph property names a composite property
// currently occupies in props, sorted.
func CompositeKeys(p *schema.PropertyDescriptor, props map[string]any) []string {
	prefix := p.CompositePrefix() + p.CompositeDelimiter()
	var keys []string
	for k := range props {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
