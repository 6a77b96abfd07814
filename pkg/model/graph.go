package model

import "slices"

// Graph is a JSON-friendly snapshot of the file dependency graph. It is what
// the HTTP API and the console report render; the scheduler itself works on
// the arena in pkg/graph.
type Graph struct {
	Nodes map[string]*Node `json:"nodes"`
	Edges []*Edge          `json:"edges"`
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes: make(map[string]*Node),
		Edges: make([]*Edge, 0),
	}
}

const (
	NodeTypeSource  = "source"  // genuine project source, produces output
	NodeTypeVirtual = "virtual" // mirrored or synthetic buffer, never emitted

	EdgeTypeReference = "reference"
)

// Node is one file.
type Node struct {
	ID        string                 `json:"id"`
	Label     string                 `json:"label"`
	Type      string                 `json:"type"`
	Version   string                 `json:"version,omitempty"`
	Signature string                 `json:"signature,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Edge points from a file to a file whose shape it depends on.
type Edge struct {
	Source   string                 `json:"source"`
	Target   string                 `json:"target"`
	Type     string                 `json:"type"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// AddNode adds a node to the graph. If a node with the same ID exists, it updates it.
func (g *Graph) AddNode(node *Node) {
	if node.Metadata == nil {
		node.Metadata = make(map[string]interface{})
	}
	g.Nodes[node.ID] = node
}

// AddEdge adds an edge to the graph.
func (g *Graph) AddEdge(edge *Edge) {
	if edge.Metadata == nil {
		edge.Metadata = make(map[string]interface{})
	}
	g.Edges = append(g.Edges, edge)
}

// Dependents returns the sorted IDs of nodes with an edge into id.
func (g *Graph) Dependents(id string) []string {
	out := []string{}
	for _, e := range g.Edges {
		if e.Target == id {
			out = append(out, e.Source)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
