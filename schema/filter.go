package schema

import (
	"sort"
	"strings"
)

// PropertyFilter selects the fields a projection includes. Paths are dotted
// field names relative to the entity the filter is applied to, for example
// "Name" or "Knows.Name". Including a path includes everything below it.
//
// The zero value accepts everything.
type PropertyFilter struct {
	paths map[string]struct{}
}

// AcceptAll returns a filter that includes every field.
func AcceptAll() PropertyFilter { return PropertyFilter{} }

// IncludePaths returns a filter that includes only paths and their prefixes.
func IncludePaths(paths ...string) PropertyFilter {
	f := PropertyFilter{paths: make(map[string]struct{}, len(paths))}
	for _, p := range paths {
		p = strings.Trim(p, ".")
		if p != "" {
			f.paths[p] = struct{}{}
		}
	}
	return f
}

// IsNotFiltering reports whether the filter accepts everything.
func (f PropertyFilter) IsNotFiltering() bool { return f.paths == nil }

// Contains reports whether path is included: it was listed, it lies below a
// listed path, or a listed path lies below it.
func (f PropertyFilter) Contains(path string) bool {
	if f.paths == nil {
		return true
	}
	for p := range f.paths {
		if p == path || strings.HasPrefix(p, path+".") || strings.HasPrefix(path, p+".") {
			return true
		}
	}
	return false
}

// Nested returns the filter that applies to the entity reached through field.
func (f PropertyFilter) Nested(field string) PropertyFilter {
	if f.paths == nil {
		return f
	}
	if _, ok := f.paths[field]; ok {
		return AcceptAll()
	}
	nested := PropertyFilter{paths: map[string]struct{}{}}
	prefix := field + "."
	for p := range f.paths {
		if strings.HasPrefix(p, prefix) {
			nested.paths[strings.TrimPrefix(p, prefix)] = struct{}{}
		}
	}
	return nested
}

// Paths returns the listed paths in sorted order.
func (f PropertyFilter) Paths() []string {
	out := make([]string, 0, len(f.paths))
	for p := range f.paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
