package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodestone-ai/lodestone/pkg/types"
)

func node(id string) types.GraphNode {
	return types.GraphNode{
		ID:       id,
		NodeType: types.NodeFunction,
		Name:     id,
		FilePath: "main.go",
		Language: "go",
	}
}

func edge(from, to string, rel types.RelationshipType) types.GraphEdge {
	return types.GraphEdge{
		SourceID: from, TargetID: to,
		Relationship: rel,
		Weight:       1, Confidence: 1,
	}
}

// buildGraph creates nodes for each ID and adds the given edges.
func buildGraph(t *testing.T, ids []string, edges []types.GraphEdge) *Graph {
	t.Helper()
	g := New(0)
	for _, id := range ids {
		require.NoError(t, g.UpsertNode(node(id)))
	}
	for _, e := range edges {
		require.NoError(t, g.AddEdge(e))
	}
	return g
}

func TestUpsertNode_Idempotent(t *testing.T) {
	g := New(0)
	require.NoError(t, g.UpsertNode(node("a")))
	require.NoError(t, g.UpsertNode(node("a")))
	assert.Equal(t, 1, g.NodeCount())

	updated := node("a")
	updated.Name = "renamed"
	require.NoError(t, g.UpsertNode(updated))
	got, err := g.Node("a")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
}

func TestUpsertNode_Invalid(t *testing.T) {
	g := New(0)
	assert.ErrorIs(t, g.UpsertNode(types.GraphNode{ID: "x"}), ErrInvalidNode)
	assert.ErrorIs(t, g.UpsertNode(types.GraphNode{Name: "x"}), ErrInvalidNode)
}

func TestAddEdge_RequiresEndpoints(t *testing.T) {
	g := New(0)
	require.NoError(t, g.UpsertNode(node("a")))

	err := g.AddEdge(edge("a", "ghost", types.RelCalls))
	require.ErrorIs(t, err, ErrMissingEndpoint)

	err = g.AddEdge(edge("ghost", "a", types.RelCalls))
	require.ErrorIs(t, err, ErrMissingEndpoint)
	assert.Equal(t, 0, g.EdgeCount())
}

func TestAddEdge_ParallelRelationships(t *testing.T) {
	g := buildGraph(t, []string{"a", "b"}, nil)

	require.NoError(t, g.AddEdge(edge("a", "b", types.RelCalls)))
	require.NoError(t, g.AddEdge(edge("a", "b", types.RelImports)))
	assert.Equal(t, 2, g.EdgeCount())

	// Same endpoints and relationship replaces, not duplicates.
	e := edge("a", "b", types.RelCalls)
	e.Weight = 5
	require.NoError(t, g.AddEdge(e))
	assert.Equal(t, 2, g.EdgeCount())
}

func TestRemoveFile_DropsNodesAndEdges(t *testing.T) {
	g := New(0)
	a := node("a")
	b := node("b")
	b.FilePath = "other.go"
	require.NoError(t, g.UpsertNode(a))
	require.NoError(t, g.UpsertNode(b))
	require.NoError(t, g.AddEdge(edge("a", "b", types.RelCalls)))
	require.NoError(t, g.AddEdge(edge("b", "a", types.RelCalls)))

	removed := g.RemoveFile("main.go")
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, g.NodeCount())
	assert.Equal(t, 0, g.EdgeCount())

	_, err := g.Node("a")
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestNeighbors_DirectionAndRadius(t *testing.T) {
	// a -> b -> c, d -> a
	g := buildGraph(t, []string{"a", "b", "c", "d"}, []types.GraphEdge{
		edge("a", "b", types.RelCalls),
		edge("b", "c", types.RelCalls),
		edge("d", "a", types.RelCalls),
	})

	out, err := g.Neighbors("a", 1, DirectionOut)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, out)

	in, err := g.Neighbors("a", 1, DirectionIn)
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, in)

	both, err := g.Neighbors("a", 2, DirectionBoth)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "d"}, both)

	_, err = g.Neighbors("ghost", 1, DirectionOut)
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestShortestPath_FollowsDirectedEdges(t *testing.T) {
	// a -> b -> d and a -> c -> d; plus a long detour.
	g := buildGraph(t, []string{"a", "b", "c", "d", "e"}, []types.GraphEdge{
		edge("a", "b", types.RelCalls),
		edge("b", "d", types.RelCalls),
		edge("a", "c", types.RelImports),
		edge("c", "d", types.RelImports),
		edge("a", "e", types.RelCalls),
		edge("e", "b", types.RelCalls),
	})

	path, err := g.ShortestPath("a", "d", nil)
	require.NoError(t, err)
	assert.Len(t, path, 3)
	assert.Equal(t, "a", path[0])
	assert.Equal(t, "d", path[2])

	// Restricting to imports forces the c route.
	path, err = g.ShortestPath("a", "d", []types.RelationshipType{types.RelImports})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "d"}, path)

	// No reverse path in a directed graph.
	_, err = g.ShortestPath("d", "a", nil)
	assert.ErrorIs(t, err, ErrNoPath)
}

func TestShortestPath_SelfIsSingleton(t *testing.T) {
	g := buildGraph(t, []string{"a"}, nil)
	path, err := g.ShortestPath("a", "a", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, path)
}

func TestConnectedComponents_UndirectedProjection(t *testing.T) {
	g := buildGraph(t, []string{"a", "b", "c", "x", "y", "lone"}, []types.GraphEdge{
		edge("a", "b", types.RelCalls),
		edge("c", "b", types.RelCalls),
		edge("x", "y", types.RelCalls),
	})

	components := g.ConnectedComponents()
	require.Len(t, components, 3)
	assert.Equal(t, []string{"a", "b", "c"}, components[0])
	assert.Equal(t, []string{"x", "y"}, components[1])
	assert.Equal(t, []string{"lone"}, components[2])
}

func TestCentrality_DegreeHub(t *testing.T) {
	// hub connects to all others.
	g := buildGraph(t, []string{"hub", "a", "b", "c"}, []types.GraphEdge{
		edge("hub", "a", types.RelCalls),
		edge("hub", "b", types.RelCalls),
		edge("c", "hub", types.RelCalls),
	})

	scores, err := g.Centrality(CentralityDegree)
	require.NoError(t, err)
	for id := range map[string]bool{"a": true, "b": true, "c": true} {
		assert.Greater(t, scores["hub"], scores[id])
	}
}

func TestCentrality_BetweennessBridge(t *testing.T) {
	// a -> bridge -> b; bridge lies on every a..b path.
	g := buildGraph(t, []string{"a", "bridge", "b"}, []types.GraphEdge{
		edge("a", "bridge", types.RelCalls),
		edge("bridge", "b", types.RelCalls),
	})

	scores, err := g.Centrality(CentralityBetweenness)
	require.NoError(t, err)
	assert.Greater(t, scores["bridge"], scores["a"])
	assert.Greater(t, scores["bridge"], scores["b"])
}

func TestCentrality_PageRankSink(t *testing.T) {
	// Everything points at sink.
	g := buildGraph(t, []string{"sink", "a", "b", "c"}, []types.GraphEdge{
		edge("a", "sink", types.RelCalls),
		edge("b", "sink", types.RelCalls),
		edge("c", "sink", types.RelCalls),
	})

	scores, err := g.Centrality(CentralityPageRank)
	require.NoError(t, err)
	assert.Greater(t, scores["sink"], scores["a"])

	var total float64
	for _, s := range scores {
		total += s
	}
	assert.InDelta(t, 1.0, total, 0.01)
}

func TestCentrality_UnknownMeasure(t *testing.T) {
	g := buildGraph(t, []string{"a"}, nil)
	_, err := g.Centrality(CentralityMeasure("bogus"))
	assert.ErrorIs(t, err, ErrUnknownMeasure)
}

func TestAnalyticsCache_PurgedOnMutation(t *testing.T) {
	g := buildGraph(t, []string{"a", "b"}, []types.GraphEdge{
		edge("a", "b", types.RelCalls),
	})

	out, err := g.Neighbors("a", 1, DirectionOut)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, out)
	assert.Positive(t, g.CacheLen())

	// A mutation invalidates cached answers.
	require.NoError(t, g.UpsertNode(node("c")))
	assert.Zero(t, g.CacheLen())

	require.NoError(t, g.AddEdge(edge("a", "c", types.RelCalls)))
	out, err = g.Neighbors("a", 1, DirectionOut)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, out)
}

func TestAnalyticsCache_ReturnsIsolatedCopies(t *testing.T) {
	g := buildGraph(t, []string{"a", "b"}, []types.GraphEdge{
		edge("a", "b", types.RelCalls),
	})

	first, err := g.Neighbors("a", 1, DirectionOut)
	require.NoError(t, err)
	first[0] = "mutated"

	second, err := g.Neighbors("a", 1, DirectionOut)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, second)
}
