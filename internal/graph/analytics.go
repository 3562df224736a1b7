package graph

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/lodestone-ai/lodestone/pkg/types"
)

// Direction selects which edges a traversal follows.
type Direction int

const (
	DirectionOut Direction = iota
	DirectionIn
	DirectionBoth
)

func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "in"
	case DirectionBoth:
		return "both"
	default:
		return "out"
	}
}

// CentralityMeasure selects a node importance measure.
type CentralityMeasure string

const (
	CentralityDegree      CentralityMeasure = "degree"
	CentralityCloseness   CentralityMeasure = "closeness"
	CentralityBetweenness CentralityMeasure = "betweenness"
	CentralityPageRank    CentralityMeasure = "pagerank"
	CentralityEigenvector CentralityMeasure = "eigenvector"
)

// ErrNoPath reports that no path exists between two nodes.
var ErrNoPath = errors.New("no path between nodes")

// ErrUnknownMeasure reports an unrecognized centrality measure.
var ErrUnknownMeasure = errors.New("unknown centrality measure")

// PageRank iteration parameters.
const (
	pageRankDamping    = 0.85
	pageRankIterations = 50
	powerIterations    = 100
	convergenceEps     = 1e-6
)

// ShortestPath returns the node IDs along a shortest directed path from
// source to target, inclusive. When relationships is non-empty only edges
// of those types are followed. Edges are unweighted for path length.
func (g *Graph) ShortestPath(source, target string, relationships []types.RelationshipType) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[source]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, source)
	}
	if _, ok := g.nodes[target]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, target)
	}

	key := cacheKey("path", source, target, relKey(relationships))
	if v, ok := g.cache.get(key); ok {
		return copyPath(v.([]string)), nil
	}

	allowed := make(map[types.RelationshipType]bool, len(relationships))
	for _, r := range relationships {
		allowed[r] = true
	}

	// BFS; an unweighted shortest path needs no priority queue.
	prev := map[string]string{source: ""}
	queue := []string{source}
	for len(queue) > 0 && prev[target] == "" && target != source {
		current := queue[0]
		queue = queue[1:]
		for _, e := range g.out[current] {
			if len(allowed) > 0 && !allowed[e.Relationship] {
				continue
			}
			if _, seen := prev[e.TargetID]; seen {
				continue
			}
			prev[e.TargetID] = current
			queue = append(queue, e.TargetID)
		}
	}

	if _, ok := prev[target]; !ok {
		return nil, fmt.Errorf("%w: %q -> %q", ErrNoPath, source, target)
	}

	var path []string
	for at := target; at != ""; at = prev[at] {
		path = append(path, at)
		if at == source {
			break
		}
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	g.cache.set(key, copyPath(path))
	return path, nil
}

// Neighbors returns the IDs of nodes reachable from id within radius hops
// in the given direction, sorted, excluding id itself.
func (g *Graph) Neighbors(id string, radius int, direction Direction) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[id]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	if radius <= 0 {
		radius = 1
	}

	key := cacheKey("neighbors", id, fmt.Sprint(radius), direction.String())
	if v, ok := g.cache.get(key); ok {
		return copyPath(v.([]string)), nil
	}

	visited := map[string]bool{id: true}
	frontier := []string{id}
	for hop := 0; hop < radius && len(frontier) > 0; hop++ {
		var next []string
		for _, current := range frontier {
			for _, adj := range g.adjacent(current, direction) {
				if !visited[adj] {
					visited[adj] = true
					next = append(next, adj)
				}
			}
		}
		frontier = next
	}

	neighbors := make([]string, 0, len(visited)-1)
	for nid := range visited {
		if nid != id {
			neighbors = append(neighbors, nid)
		}
	}
	sort.Strings(neighbors)

	g.cache.set(key, copyPath(neighbors))
	return neighbors, nil
}

func (g *Graph) adjacent(id string, direction Direction) []string {
	var adj []string
	if direction == DirectionOut || direction == DirectionBoth {
		for _, e := range g.out[id] {
			adj = append(adj, e.TargetID)
		}
	}
	if direction == DirectionIn || direction == DirectionBoth {
		for _, e := range g.in[id] {
			adj = append(adj, e.SourceID)
		}
	}
	return adj
}

// ConnectedComponents returns the weakly connected components of the
// graph, each sorted by node ID, largest component first.
func (g *Graph) ConnectedComponents() [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	key := cacheKey("components")
	if v, ok := g.cache.get(key); ok {
		return copyComponents(v.([][]string))
	}

	visited := make(map[string]bool, len(g.nodes))
	var components [][]string
	for id := range g.nodes {
		if visited[id] {
			continue
		}
		var component []string
		stack := []string{id}
		visited[id] = true
		for len(stack) > 0 {
			current := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			component = append(component, current)
			for _, adj := range g.adjacent(current, DirectionBoth) {
				if !visited[adj] {
					visited[adj] = true
					stack = append(stack, adj)
				}
			}
		}
		sort.Strings(component)
		components = append(components, component)
	}
	sort.Slice(components, func(i, j int) bool {
		if len(components[i]) != len(components[j]) {
			return len(components[i]) > len(components[j])
		}
		return components[i][0] < components[j][0]
	})

	g.cache.set(key, copyComponents(components))
	return components
}

// Centrality scores every node by the given measure. Eigenvector
// centrality falls back to degree when power iteration does not converge.
func (g *Graph) Centrality(measure CentralityMeasure) (map[string]float64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	key := cacheKey("centrality", string(measure))
	if v, ok := g.cache.get(key); ok {
		return copyScores(v.(map[string]float64)), nil
	}

	var scores map[string]float64
	switch measure {
	case CentralityDegree:
		scores = g.degreeCentrality()
	case CentralityCloseness:
		scores = g.closenessCentrality()
	case CentralityBetweenness:
		scores = g.betweennessCentrality()
	case CentralityPageRank:
		scores = g.pageRank()
	case CentralityEigenvector:
		var converged bool
		scores, converged = g.eigenvectorCentrality()
		if !converged {
			scores = g.degreeCentrality()
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMeasure, measure)
	}

	g.cache.set(key, copyScores(scores))
	return scores, nil
}

// degreeCentrality normalizes total degree by the maximum possible degree.
func (g *Graph) degreeCentrality() map[string]float64 {
	scores := make(map[string]float64, len(g.nodes))
	denom := float64(len(g.nodes) - 1)
	if denom <= 0 {
		denom = 1
	}
	for id := range g.nodes {
		scores[id] = float64(len(g.out[id])+len(g.in[id])) / denom
	}
	return scores
}

// closenessCentrality uses the harmonic variant, which is defined on
// disconnected graphs.
func (g *Graph) closenessCentrality() map[string]float64 {
	scores := make(map[string]float64, len(g.nodes))
	denom := float64(len(g.nodes) - 1)
	if denom <= 0 {
		denom = 1
	}
	for id := range g.nodes {
		var sum float64
		for other, dist := range g.bfsDistances(id) {
			if other != id && dist > 0 {
				sum += 1 / float64(dist)
			}
		}
		scores[id] = sum / denom
	}
	return scores
}

func (g *Graph) bfsDistances(source string) map[string]int {
	dist := map[string]int{source: 0}
	queue := []string{source}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, e := range g.out[current] {
			if _, seen := dist[e.TargetID]; !seen {
				dist[e.TargetID] = dist[current] + 1
				queue = append(queue, e.TargetID)
			}
		}
	}
	return dist
}

// betweennessCentrality implements Brandes' accumulation over BFS DAGs.
func (g *Graph) betweennessCentrality() map[string]float64 {
	scores := make(map[string]float64, len(g.nodes))
	for id := range g.nodes {
		scores[id] = 0
	}

	for source := range g.nodes {
		var stack []string
		preds := make(map[string][]string, len(g.nodes))
		sigma := map[string]float64{source: 1}
		dist := map[string]int{source: 0}

		queue := []string{source}
		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]
			stack = append(stack, current)
			for _, e := range g.out[current] {
				next := e.TargetID
				if _, seen := dist[next]; !seen {
					dist[next] = dist[current] + 1
					queue = append(queue, next)
				}
				if dist[next] == dist[current]+1 {
					sigma[next] += sigma[current]
					preds[next] = append(preds[next], current)
				}
			}
		}

		delta := make(map[string]float64, len(stack))
		for i := len(stack) - 1; i >= 0; i-- {
			current := stack[i]
			for _, pred := range preds[current] {
				delta[pred] += sigma[pred] / sigma[current] * (1 + delta[current])
			}
			if current != source {
				scores[current] += delta[current]
			}
		}
	}

	// Normalize by the number of ordered pairs excluding the node itself.
	if n := len(g.nodes); n > 2 {
		norm := float64((n - 1) * (n - 2))
		for id := range scores {
			scores[id] /= norm
		}
	}
	return scores
}

func (g *Graph) pageRank() map[string]float64 {
	n := len(g.nodes)
	if n == 0 {
		return map[string]float64{}
	}

	scores := make(map[string]float64, n)
	for id := range g.nodes {
		scores[id] = 1 / float64(n)
	}

	for iter := 0; iter < pageRankIterations; iter++ {
		next := make(map[string]float64, n)
		var dangling float64
		for id, score := range scores {
			outDeg := len(g.out[id])
			if outDeg == 0 {
				dangling += score
				continue
			}
			share := score / float64(outDeg)
			for _, e := range g.out[id] {
				next[e.TargetID] += share
			}
		}

		base := (1-pageRankDamping)/float64(n) + pageRankDamping*dangling/float64(n)
		var diff float64
		for id := range g.nodes {
			value := base + pageRankDamping*next[id]
			diff += math.Abs(value - scores[id])
			next[id] = value
		}
		scores = next
		if diff < convergenceEps {
			break
		}
	}
	return scores
}

// eigenvectorCentrality runs power iteration over in-edges. The second
// return reports convergence.
func (g *Graph) eigenvectorCentrality() (map[string]float64, bool) {
	n := len(g.nodes)
	if n == 0 {
		return map[string]float64{}, true
	}

	scores := make(map[string]float64, n)
	for id := range g.nodes {
		scores[id] = 1
	}

	for iter := 0; iter < powerIterations; iter++ {
		next := make(map[string]float64, n)
		for id := range g.nodes {
			for _, e := range g.in[id] {
				next[id] += scores[e.SourceID] * e.Weight
			}
		}

		var norm float64
		for _, v := range next {
			norm += v * v
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			return nil, false
		}

		var diff float64
		for id := range g.nodes {
			value := next[id] / norm
			diff += math.Abs(value - scores[id])
			scores[id] = value
		}
		if diff < convergenceEps {
			return scores, true
		}
	}
	return nil, false
}

// CacheLen reports the number of cached analytics answers, for stats.
func (g *Graph) CacheLen() int {
	return g.cache.len()
}

func cacheKey(parts ...string) string {
	return strings.Join(parts, "\x00")
}

func relKey(relationships []types.RelationshipType) string {
	if len(relationships) == 0 {
		return "*"
	}
	keys := make([]string, len(relationships))
	for i, r := range relationships {
		keys[i] = string(r)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

func copyPath(path []string) []string {
	return append([]string(nil), path...)
}

func copyComponents(components [][]string) [][]string {
	out := make([][]string, len(components))
	for i, c := range components {
		out[i] = copyPath(c)
	}
	return out
}

func copyScores(scores map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(scores))
	for k, v := range scores {
		out[k] = v
	}
	return out
}
