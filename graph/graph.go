package graph

import (
	"sort"
	"time"

	"github.com/weft-ai/weft/types"
)

// Graph is the immutable workflow aggregate. Nodes and edges are owned by
// the graph and addressed by id; structural edits go through the WithX
// methods, which return a new graph with Version incremented and leave the
// receiver untouched.
type Graph struct {
	ID        string
	Name      string
	Version   int
	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
	CreatedBy string

	nodes map[string]*Node
	edges map[string]*Edge
	// outgoing/incoming index edge ids by endpoint node id.
	outgoing map[string][]string
	incoming map[string][]string
}

// New creates an empty graph with version 1.
func New(id, name string) *Graph {
	now := time.Now()
	return &Graph{
		ID:        id,
		Name:      name,
		Version:   1,
		Metadata:  map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
		nodes:     map[string]*Node{},
		edges:     map[string]*Edge{},
		outgoing:  map[string][]string{},
		incoming:  map[string][]string{},
	}
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Edge returns the edge with the given id.
func (g *Graph) Edge(id string) (*Edge, bool) {
	e, ok := g.edges[id]
	return e, ok
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// NodeIDs returns all node ids in deterministic order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Nodes returns all nodes in deterministic id order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, id := range g.NodeIDs() {
		out = append(out, g.nodes[id])
	}
	return out
}

// Edges returns all edges in deterministic id order.
func (g *Graph) Edges() []*Edge {
	ids := make([]string, 0, len(g.edges))
	for id := range g.edges {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*Edge, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.edges[id])
	}
	return out
}

// Outgoing returns the edges leaving the given node, ordered by edge id.
func (g *Graph) Outgoing(nodeID string) []*Edge {
	return g.edgesByIDs(g.outgoing[nodeID])
}

// Incoming returns the edges entering the given node, ordered by edge id.
func (g *Graph) Incoming(nodeID string) []*Edge {
	return g.edgesByIDs(g.incoming[nodeID])
}

func (g *Graph) edgesByIDs(ids []string) []*Edge {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	out := make([]*Edge, 0, len(sorted))
	for _, id := range sorted {
		out = append(out, g.edges[id])
	}
	return out
}

// Successors returns the distinct successor node ids of nodeID, sorted.
func (g *Graph) Successors(nodeID string) []string {
	seen := map[string]struct{}{}
	for _, e := range g.Outgoing(nodeID) {
		seen[e.To] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// StartNodes returns the ids of nodes with no incoming edges, sorted.
func (g *Graph) StartNodes() []string {
	var out []string
	for _, id := range g.NodeIDs() {
		if len(g.incoming[id]) == 0 {
			out = append(out, id)
		}
	}
	return out
}

// WithNode returns a new graph version containing the node. Adding a node
// whose id already exists fails with DUPLICATE_NODE.
func (g *Graph) WithNode(n *Node) (*Graph, error) {
	if !n.Type.Valid() {
		return nil, types.NewErrorf(types.ErrValidation, "unknown node type %q", n.Type).WithNode(n.ID)
	}
	if _, exists := g.nodes[n.ID]; exists {
		return nil, types.NewErrorf(types.ErrDuplicateNode, "node %s already exists", n.ID).WithNode(n.ID)
	}
	next := g.clone()
	c := n.Clone()
	c.GraphID = g.ID
	next.nodes[c.ID] = c
	return next, nil
}

// WithEdge returns a new graph version containing the edge. Both endpoints
// must already exist.
func (g *Graph) WithEdge(e *Edge) (*Graph, error) {
	if _, exists := g.edges[e.ID]; exists {
		return nil, types.NewErrorf(types.ErrDuplicateEdge, "edge %s already exists", e.ID).WithEdge(e.ID)
	}
	if _, ok := g.nodes[e.From]; !ok {
		return nil, types.NewErrorf(types.ErrDanglingEdge, "edge %s references missing source node %s", e.ID, e.From).WithEdge(e.ID)
	}
	if _, ok := g.nodes[e.To]; !ok {
		return nil, types.NewErrorf(types.ErrDanglingEdge, "edge %s references missing target node %s", e.ID, e.To).WithEdge(e.ID)
	}
	next := g.clone()
	c := e.Clone()
	c.GraphID = g.ID
	next.edges[c.ID] = c
	next.outgoing[c.From] = append(next.outgoing[c.From], c.ID)
	next.incoming[c.To] = append(next.incoming[c.To], c.ID)
	return next, nil
}

// WithoutNode returns a new graph version without the node and without any
// edge touching it.
func (g *Graph) WithoutNode(nodeID string) (*Graph, error) {
	if _, ok := g.nodes[nodeID]; !ok {
		return nil, types.NewErrorf(types.ErrNodeNotFound, "node %s not found", nodeID).WithNode(nodeID)
	}
	next := g.clone()
	delete(next.nodes, nodeID)
	for id, e := range next.edges {
		if e.From == nodeID || e.To == nodeID {
			delete(next.edges, id)
		}
	}
	next.reindex()
	return next, nil
}

// WithoutEdge returns a new graph version without the edge.
func (g *Graph) WithoutEdge(edgeID string) (*Graph, error) {
	if _, ok := g.edges[edgeID]; !ok {
		return nil, types.NewErrorf(types.ErrEdgeNotFound, "edge %s not found", edgeID).WithEdge(edgeID)
	}
	next := g.clone()
	delete(next.edges, edgeID)
	next.reindex()
	return next, nil
}

// clone copies the graph and bumps the version.
func (g *Graph) clone() *Graph {
	next := &Graph{
		ID:        g.ID,
		Name:      g.Name,
		Version:   g.Version + 1,
		Metadata:  cloneMap(g.Metadata),
		CreatedAt: g.CreatedAt,
		UpdatedAt: time.Now(),
		CreatedBy: g.CreatedBy,
		nodes:     make(map[string]*Node, len(g.nodes)),
		edges:     make(map[string]*Edge, len(g.edges)),
		outgoing:  make(map[string][]string, len(g.outgoing)),
		incoming:  make(map[string][]string, len(g.incoming)),
	}
	for id, n := range g.nodes {
		next.nodes[id] = n.Clone()
	}
	for id, e := range g.edges {
		next.edges[id] = e.Clone()
	}
	for id, ids := range g.outgoing {
		next.outgoing[id] = append([]string(nil), ids...)
	}
	for id, ids := range g.incoming {
		next.incoming[id] = append([]string(nil), ids...)
	}
	return next
}

// reindex rebuilds the outgoing/incoming indexes from the edge set.
func (g *Graph) reindex() {
	g.outgoing = map[string][]string{}
	g.incoming = map[string][]string{}
	for id, e := range g.edges {
		g.outgoing[e.From] = append(g.outgoing[e.From], id)
		g.incoming[e.To] = append(g.incoming[e.To], id)
	}
}
