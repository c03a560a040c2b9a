package mapping

import (
	"strconv"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/saulfrancisco-ruizacevedo/go-neoogm/convert"
	"github.com/saulfrancisco-ruizacevedo/go-neoogm/cypher"
)

// source is a node as delivered by the database, either a real node or the
// map projection the generated queries return.
type source struct {
	elementID string
	legacyID  int64
	hasID     bool
	labels    []string
	props     map[string]any
	// projection holds the whole map for map sources; related collections
	// are looked up in it by name.
	projection map[string]any
}

// reserved keys of a projection that are not graph properties.
var reserved = map[string]bool{
	cypher.NameOfLabels:           true,
	cypher.NameOfElementID:        true,
	cypher.NameOfInternalID:       true,
	cypher.NameOfRelationship:     true,
	cypher.NameOfRelationshipType: true,
}

func nodeSource(n dbtype.Node) source {
	return source{
		elementID: convert.ElementID(n.ElementId, n.Id),
		legacyID:  n.Id,
		hasID:     true,
		labels:    n.Labels,
		props:     n.Props,
	}
}

func relationshipSource(r dbtype.Relationship) source {
	return source{
		elementID: convert.ElementID(r.ElementId, r.Id),
		legacyID:  r.Id,
		hasID:     true,
		props:     r.Props,
	}
}

// mapSource reads a projection. collectionKeys names the keys holding
// related entities; they are kept out of the properties.
func mapSource(m map[string]any, collectionKeys map[string]bool) source {
	s := source{projection: m, props: map[string]any{}}
	for k, v := range m {
		if reserved[k] || collectionKeys[k] {
			continue
		}
		s.props[k] = v
	}
	if raw, ok := m[cypher.NameOfLabels].([]any); ok {
		for _, l := range raw {
			if label, ok := l.(string); ok {
				s.labels = append(s.labels, label)
			}
		}
	}
	if legacy, ok := m[cypher.NameOfInternalID].(int64); ok {
		s.legacyID = legacy
		s.hasID = true
	}
	switch id := m[cypher.NameOfElementID].(type) {
	case string:
		s.elementID = id
		s.hasID = true
	case int64:
		s.legacyID = id
		s.elementID = strconv.FormatInt(id, 10)
		s.hasID = true
	}
	if s.hasID && s.elementID == "" {
		s.elementID = strconv.FormatInt(s.legacyID, 10)
	}
	return s
}

func (s source) nodeIdentity() string {
	if !s.hasID {
		return ""
	}
	return "N:" + s.elementID
}

func (s source) isProjection() bool { return s.projection != nil }

// internalID returns the value for an internal id field.
func (s source) internalID(legacy bool) any {
	if legacy {
		return s.legacyID
	}
	return s.elementID
}
