// Package schema holds the metadata model of the object-graph mapper: entity,
// property, relationship and id descriptors, and the Context that resolves
// declarative node definitions into a linked descriptor graph.
//
// Definitions come from three places, all of which produce NodeDefinition
// values that NewContext resolves in one pass:
//
//   - a builder API (NodeDefinition literals, or the helpers in definition.go),
//   - `ogm` struct tags (FromStruct, Build),
//   - declarative YAML schema files (LoadFile, Parse).
//
// A resolved Context is immutable apart from its internal caches and is safe
// for concurrent use.
package schema
