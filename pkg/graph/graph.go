package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ritzau/emit-scheduler/pkg/model"
	"github.com/ritzau/emit-scheduler/pkg/project"
	"github.com/ritzau/emit-scheduler/pkg/shape"
	"github.com/ritzau/emit-scheduler/pkg/sortedset"
	"gonum.org/v1/gonum/graph/simple"
)

// Node is a file in the dependency graph. It carries the file's shape tracker
// and two edge sets stored as arena ids, each sorted by file path:
// references (files whose shape this file depends on) and referencedBy
// (the inverse). The two sets are always mutual.
type Node struct {
	*shape.Tracker

	id           int64
	references   []int64
	referencedBy []int64

	// content version as of the last references recomputation
	version    string
	hasVersion bool
	// some referenced file was outside the project last time
	unresolved bool
}

// ID returns the node's arena id. It satisfies gonum's graph.Node.
func (n *Node) ID() int64 {
	return n.id
}

// Graph is an arena of file nodes addressed by stable integer ids.
type Graph struct {
	host   project.Host
	nodes  map[int64]*Node
	ids    map[project.Path]int64
	nextID int64
}

// New creates an empty graph backed by host.
func New(host project.Host) *Graph {
	return &Graph{
		host:  host,
		nodes: make(map[int64]*Node),
		ids:   make(map[project.Path]int64),
	}
}

// compare orders node ids by the path of the node they name.
func (g *Graph) compare(a, b int64) int {
	return strings.Compare(string(g.nodes[a].Path()), string(g.nodes[b].Path()))
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// GetNode returns the node for path.
func (g *Graph) GetNode(path project.Path) (*Node, bool) {
	id, ok := g.ids[path]
	if !ok {
		return nil, false
	}
	return g.nodes[id], true
}

// GetOrCreateNode returns the node for path, creating it on first use.
func (g *Graph) GetOrCreateNode(path project.Path) *Node {
	if n, ok := g.GetNode(path); ok {
		return n
	}

	n := &Node{
		Tracker: shape.NewTracker(g.host, path),
		id:      g.nextID,
	}
	g.nodes[n.id] = n
	g.ids[path] = n.id
	g.nextID++
	return n
}

// RemoveNode unlinks path from every neighbor and drops it from the arena.
func (g *Graph) RemoveNode(path project.Path) bool {
	n, ok := g.GetNode(path)
	if !ok {
		return false
	}

	for _, id := range n.references {
		ref := g.nodes[id]
		ref.referencedBy, _ = sortedset.Remove(ref.referencedBy, n.id, g.compare)
	}
	for _, id := range n.referencedBy {
		dep := g.nodes[id]
		dep.references, _ = sortedset.Remove(dep.references, n.id, g.compare)
	}
	n.references = nil
	n.referencedBy = nil

	delete(g.nodes, n.id)
	delete(g.ids, path)
	return true
}

// Nodes returns all nodes sorted by path.
func (g *Graph) Nodes() []*Node {
	nodes := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, n)
	}
	slices.SortFunc(nodes, func(a, b *Node) int {
		return strings.Compare(string(a.Path()), string(b.Path()))
	})
	return nodes
}

// References returns a copy of the files n depends on, sorted by path.
func (g *Graph) References(n *Node) []*Node {
	return g.resolve(n.references)
}

// ReferencedBy returns a copy of the files depending on n, sorted by path.
func (g *Graph) ReferencedBy(n *Node) []*Node {
	return g.resolve(n.referencedBy)
}

func (g *Graph) resolve(ids []int64) []*Node {
	out := make([]*Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.nodes[id])
	}
	return out
}

// setReferences replaces the outgoing edges of n with newRefs (sorted,
// duplicate free) and patches the inverse edges of the affected neighbors.
func (g *Graph) setReferences(n *Node, newRefs []int64) {
	sortedset.Diff(newRefs, n.references, g.compare,
		func(id int64) {
			ref := g.nodes[id]
			ref.referencedBy, _ = sortedset.Insert(ref.referencedBy, n.id, g.compare)
		},
		func(id int64) {
			ref := g.nodes[id]
			ref.referencedBy, _ = sortedset.Remove(ref.referencedBy, n.id, g.compare)
		})
	n.references = newRefs
}

// CheckInvariants verifies that every edge set is sorted, points at live
// nodes, and is mirrored by the inverse set of its neighbor.
func (g *Graph) CheckInvariants() error {
	for path, id := range g.ids {
		n, ok := g.nodes[id]
		if !ok || n.Path() != path {
			return fmt.Errorf("path index for %s points at id %d which is missing or renamed", path, id)
		}
	}

	for _, n := range g.Nodes() {
		for _, id := range slices.Concat(n.references, n.referencedBy) {
			if _, ok := g.nodes[id]; !ok {
				return fmt.Errorf("%s: dangling edge to id %d", n.Path(), id)
			}
		}
		if !sortedset.IsSorted(n.references, g.compare) {
			return fmt.Errorf("%s: references not sorted", n.Path())
		}
		if !sortedset.IsSorted(n.referencedBy, g.compare) {
			return fmt.Errorf("%s: referencedBy not sorted", n.Path())
		}
		for _, id := range n.references {
			ref := g.nodes[id]
			if !sortedset.Contains(ref.referencedBy, n.id, g.compare) {
				return fmt.Errorf("%s references %s but is missing from its referencedBy", n.Path(), ref.Path())
			}
		}
		for _, id := range n.referencedBy {
			dep := g.nodes[id]
			if !sortedset.Contains(dep.references, n.id, g.compare) {
				return fmt.Errorf("%s lists %s in referencedBy but is missing from its references", n.Path(), dep.Path())
			}
		}
	}
	return nil
}

// Directed exports the graph to gonum, keeping arena ids as node ids.
// Edges point from a file to the files it references.
func (g *Graph) Directed() *simple.DirectedGraph {
	dg := simple.NewDirectedGraph()
	for id := range g.nodes {
		dg.AddNode(simple.Node(id))
	}
	for id, n := range g.nodes {
		for _, ref := range n.references {
			if ref == id {
				continue
			}
			dg.SetEdge(dg.NewEdge(dg.Node(id), dg.Node(ref)))
		}
	}
	return dg
}

// PathOf returns the path of the node with the given arena id.
func (g *Graph) PathOf(id int64) (project.Path, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return "", false
	}
	return n.Path(), true
}

// ToModel renders the graph as a JSON-friendly snapshot.
func (g *Graph) ToModel() *model.Graph {
	mg := model.NewGraph()
	for _, n := range g.Nodes() {
		node := &model.Node{
			ID:    string(n.Path()),
			Label: string(n.Path()),
			Type:  model.NodeTypeSource,
		}
		if info, ok := n.ScriptInfo(); ok {
			node.Label = info.FileName
			node.Version = info.Version
			if !info.Emittable() {
				node.Type = model.NodeTypeVirtual
			}
		}
		if sig, ok := n.Signature(); ok {
			node.Signature = sig
		}
		mg.AddNode(node)

		for _, ref := range g.References(n) {
			mg.AddEdge(&model.Edge{
				Source: string(n.Path()),
				Target: string(ref.Path()),
				Type:   model.EdgeTypeReference,
			})
		}
	}
	return mg
}
