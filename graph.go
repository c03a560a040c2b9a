package neoogm

import (
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/saulfrancisco-ruizacevedo/go-neoogm/convert"
)

// GraphNode is a node of a GraphResult, independent of any entity type.
type GraphNode struct {
	// ID is the element id of the node.
	ID string `json:"id"`

	Labels []string `json:"labels"`

	Properties map[string]any `json:"properties"`
}

// Edge is a relationship of a GraphResult. Source and Target are the element
// ids of its start and end nodes.
type Edge struct {
	ID         string         `json:"id"`
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

// GraphResult holds the distinct nodes and edges of a query result, in the
// order they were first returned. It serializes to the nodes/edges layout
// most graph visualization libraries consume.
type GraphResult struct {
	Nodes []*GraphNode `json:"nodes"`
	Edges []*Edge      `json:"edges"`
}

// graphCollector de-duplicates graph elements by element id.
type graphCollector struct {
	graph     *GraphResult
	seenNodes map[string]bool
	seenEdges map[string]bool
}

func newGraphCollector() *graphCollector {
	return &graphCollector{
		graph:     &GraphResult{Nodes: make([]*GraphNode, 0), Edges: make([]*Edge, 0)},
		seenNodes: map[string]bool{},
		seenEdges: map[string]bool{},
	}
}

// add records every node and relationship found in value, looking into
// paths, lists and maps.
func (g *graphCollector) add(value any) {
	if n, ok := convert.AsNode(value); ok {
		g.addNode(n)
		return
	}
	if r, ok := convert.AsRelationship(value); ok {
		g.addEdge(r)
		return
	}
	if p, ok := convert.AsPath(value); ok {
		for _, n := range p.Nodes {
			g.addNode(n)
		}
		for _, r := range p.Relationships {
			g.addEdge(r)
		}
		return
	}
	switch v := value.(type) {
	case []any:
		for _, item := range v {
			g.add(item)
		}
	case map[string]any:
		for _, item := range v {
			g.add(item)
		}
	}
}

func (g *graphCollector) addNode(n dbtype.Node) {
	id := convert.ElementID(n.ElementId, n.Id)
	if g.seenNodes[id] {
		return
	}
	g.seenNodes[id] = true
	g.graph.Nodes = append(g.graph.Nodes, &GraphNode{ID: id, Labels: n.Labels, Properties: n.Props})
}

func (g *graphCollector) addEdge(r dbtype.Relationship) {
	id := convert.ElementID(r.ElementId, r.Id)
	if g.seenEdges[id] {
		return
	}
	g.seenEdges[id] = true
	g.graph.Edges = append(g.graph.Edges, &Edge{
		ID:         id,
		Source:     convert.StartID(r),
		Target:     convert.EndID(r),
		Type:       r.Type,
		Properties: r.Props,
	})
}
