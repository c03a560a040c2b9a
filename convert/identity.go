package convert

import (
	"strconv"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/saulfrancisco-ruizacevedo/go-neoogm/schema"
)

// ElementID returns elementID, or the legacy numeric id in decimal when the
// server did not send an element id.
func ElementID(elementID string, legacyID int64) string {
	if elementID != "" {
		return elementID
	}
	return strconv.FormatInt(legacyID, 10)
}

// NodeIdentity is the identity map key of a node.
func NodeIdentity(n dbtype.Node) string {
	return "N:" + ElementID(n.ElementId, n.Id)
}

// RelationshipIdentity is the identity map key of a relationship walked in
// direction. The same edge seen from both of its ends gets two keys.
func RelationshipIdentity(r dbtype.Relationship, direction schema.Direction) string {
	return "R:" + direction.String() + ":" + ElementID(r.ElementId, r.Id)
}

// StartID and EndID return the element ids of the endpoints of r.
func StartID(r dbtype.Relationship) string { return ElementID(r.StartElementId, r.StartId) }
func EndID(r dbtype.Relationship) string   { return ElementID(r.EndElementId, r.EndId) }

// InternalID returns the value assigned to an internal id field: the element
// id, or the numeric id for legacy ids.
func InternalID(elementID string, legacyID int64, legacy bool) any {
	if legacy {
		return legacyID
	}
	return ElementID(elementID, legacyID)
}

// AsNode returns v as a node when it is one.
func AsNode(v any) (dbtype.Node, bool) {
	switch n := v.(type) {
	case dbtype.Node:
		return n, true
	case *dbtype.Node:
		if n != nil {
			return *n, true
		}
	}
	return dbtype.Node{}, false
}

// AsRelationship returns v as a relationship when it is one.
func AsRelationship(v any) (dbtype.Relationship, bool) {
	switch r := v.(type) {
	case dbtype.Relationship:
		return r, true
	case *dbtype.Relationship:
		if r != nil {
			return *r, true
		}
	}
	return dbtype.Relationship{}, false
}

// AsPath returns v as a path when it is one.
func AsPath(v any) (dbtype.Path, bool) {
	switch p := v.(type) {
	case dbtype.Path:
		return p, true
	case *dbtype.Path:
		if p != nil {
			return *p, true
		}
	}
	return dbtype.Path{}, false
}
