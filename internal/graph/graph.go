package graph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/lodestone-ai/lodestone/pkg/types"
)

// Sentinel errors for graph operations.
var (
	ErrNodeNotFound    = errors.New("node not found")
	ErrMissingEndpoint = errors.New("edge endpoint not found")
	ErrInvalidNode     = errors.New("invalid node")
)

// Graph is a directed multigraph of code entities. Node upserts are
// idempotent by ID; edges require both endpoints to exist. All analytics
// answers are cached until the next mutation. Safe for concurrent use.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]types.GraphNode
	out   map[string][]types.GraphEdge
	in    map[string][]types.GraphEdge

	cache *queryCache
}

// New creates an empty graph with a query cache of cacheLen entries.
func New(cacheLen int) *Graph {
	return &Graph{
		nodes: make(map[string]types.GraphNode),
		out:   make(map[string][]types.GraphEdge),
		in:    make(map[string][]types.GraphEdge),
		cache: newQueryCache(cacheLen),
	}
}

// UpsertNode adds or replaces a node by ID.
func (g *Graph) UpsertNode(node types.GraphNode) error {
	if node.ID == "" || node.Name == "" {
		return fmt.Errorf("%w: missing id or name", ErrInvalidNode)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[node.ID] = node
	g.cache.purge()
	return nil
}

// AddEdge adds a directed edge. Both endpoints must already exist.
// Parallel edges with different relationship types are allowed; an edge
// with the same endpoints and relationship replaces the previous one.
func (g *Graph) AddEdge(edge types.GraphEdge) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[edge.SourceID]; !ok {
		return fmt.Errorf("%w: source %q", ErrMissingEndpoint, edge.SourceID)
	}
	if _, ok := g.nodes[edge.TargetID]; !ok {
		return fmt.Errorf("%w: target %q", ErrMissingEndpoint, edge.TargetID)
	}

	g.out[edge.SourceID] = replaceOrAppend(g.out[edge.SourceID], edge)
	g.in[edge.TargetID] = replaceOrAppend(g.in[edge.TargetID], edge)
	g.cache.purge()
	return nil
}

func replaceOrAppend(edges []types.GraphEdge, edge types.GraphEdge) []types.GraphEdge {
	for i, e := range edges {
		if e.SourceID == edge.SourceID && e.TargetID == edge.TargetID && e.Relationship == edge.Relationship {
			edges[i] = edge
			return edges
		}
	}
	return append(edges, edge)
}

// Node returns a node by ID.
func (g *Graph) Node(id string) (types.GraphNode, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	node, ok := g.nodes[id]
	if !ok {
		return types.GraphNode{}, fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	return node, nil
}

// Nodes returns all nodes in unspecified order.
func (g *Graph) Nodes() []types.GraphNode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	nodes := make([]types.GraphNode, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, n)
	}
	return nodes
}

// Edges returns all edges in unspecified order.
func (g *Graph) Edges() []types.GraphEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var edges []types.GraphEdge
	for _, out := range g.out {
		edges = append(edges, out...)
	}
	return edges
}

// RemoveFile drops all nodes extracted from a source file together with
// their edges, so a file can be re-extracted after it changes.
func (g *Graph) RemoveFile(filePath string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	var removed []string
	for id, node := range g.nodes {
		if node.FilePath == filePath {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		delete(g.nodes, id)
		for _, e := range g.out[id] {
			g.in[e.TargetID] = dropEdges(g.in[e.TargetID], id, "")
		}
		for _, e := range g.in[id] {
			g.out[e.SourceID] = dropEdges(g.out[e.SourceID], "", id)
		}
		delete(g.out, id)
		delete(g.in, id)
	}
	if len(removed) > 0 {
		g.cache.purge()
	}
	return len(removed)
}

// dropEdges removes edges matching the given source or target ID. An empty
// string matches any.
func dropEdges(edges []types.GraphEdge, sourceID, targetID string) []types.GraphEdge {
	out := edges[:0]
	for _, e := range edges {
		if (sourceID != "" && e.SourceID == sourceID) || (targetID != "" && e.TargetID == targetID) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var n int
	for _, out := range g.out {
		n += len(out)
	}
	return n
}
