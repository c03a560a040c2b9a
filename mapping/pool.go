package mapping

import (
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/saulfrancisco-ruizacevedo/go-neoogm/convert"
)

// pool holds every node and relationship of a result, wherever it appears:
// directly in a column or nested in lists, maps and paths. Relationships of
// collection fields are matched against it, because one node's edges may be
// spread over several rows.
type pool struct {
	nodes       map[string]dbtype.Node
	rels        map[string]dbtype.Relationship
	relsOfNode  map[string][]string
	relOrdering []string
}

func newPool() *pool {
	return &pool{
		nodes:      map[string]dbtype.Node{},
		rels:       map[string]dbtype.Relationship{},
		relsOfNode: map[string][]string{},
	}
}

func (p *pool) add(value any) {
	if n, ok := convert.AsNode(value); ok {
		p.nodes[convert.ElementID(n.ElementId, n.Id)] = n
		return
	}
	if r, ok := convert.AsRelationship(value); ok {
		p.addRelationship(r)
		return
	}
	if path, ok := convert.AsPath(value); ok {
		for _, n := range path.Nodes {
			p.add(n)
		}
		for _, r := range path.Relationships {
			p.addRelationship(r)
		}
		return
	}
	switch v := value.(type) {
	case []any:
		for _, item := range v {
			p.add(item)
		}
	case map[string]any:
		for _, item := range v {
			p.add(item)
		}
	}
}

func (p *pool) addRelationship(r dbtype.Relationship) {
	id := convert.ElementID(r.ElementId, r.Id)
	if _, dup := p.rels[id]; dup {
		return
	}
	p.rels[id] = r
	p.relOrdering = append(p.relOrdering, id)
	start, end := convert.StartID(r), convert.EndID(r)
	p.relsOfNode[start] = append(p.relsOfNode[start], id)
	if end != start {
		p.relsOfNode[end] = append(p.relsOfNode[end], id)
	}
}

// relationshipsOf returns the pooled relationships touching the node, in the
// order they were first seen.
func (p *pool) relationshipsOf(nodeID string) []dbtype.Relationship {
	ids := p.relsOfNode[nodeID]
	out := make([]dbtype.Relationship, 0, len(ids))
	for _, id := range ids {
		out = append(out, p.rels[id])
	}
	return out
}

func (p *pool) node(id string) (dbtype.Node, bool) {
	n, ok := p.nodes[id]
	return n, ok
}
