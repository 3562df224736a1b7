package graph

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodestone-ai/lodestone/pkg/types"
)

const goFixture = `package demo

import (
	"fmt"
	"strings"
)

type Greeter struct {
	prefix string
}

func (g *Greeter) Greet(name string) string {
	return format(g.prefix, name)
}

func format(prefix, name string) string {
	return fmt.Sprintf("%s %s", prefix, strings.TrimSpace(name))
}

func Run() {
	g := &Greeter{prefix: "hello"}
	fmt.Println(g.Greet("world"))
}
`

const pythonFixture = `import os
from collections import OrderedDict

class Base:
    def ping(self):
        return "pong"

class Derived(Base):
    def run(self):
        return self.ping()

def main():
    return Derived().run()
`

func sourceFile(path, language, text string) types.SourceFile {
	return types.SourceFile{
		AbsolutePath: filepath.Join("/repo", path),
		RelativePath: path,
		Language:     language,
		SizeBytes:    int64(len(text)),
		RawText:      text,
	}
}

func nodesByType(ext *Extraction, nt types.NodeType) []types.GraphNode {
	var out []types.GraphNode
	for _, n := range ext.Nodes {
		if n.NodeType == nt {
			out = append(out, n)
		}
	}
	return out
}

func edgesByRel(ext *Extraction, rel types.RelationshipType) []types.GraphEdge {
	var out []types.GraphEdge
	for _, e := range ext.Edges {
		if e.Relationship == rel {
			out = append(out, e)
		}
	}
	return out
}

func TestExtract_GoFile(t *testing.T) {
	ext, err := NewExtractor().Extract(sourceFile("demo.go", "go", goFixture))
	require.NoError(t, err)

	files := nodesByType(ext, types.NodeFile)
	require.Len(t, files, 1)
	assert.Equal(t, "demo.go", files[0].Name)

	funcs := nodesByType(ext, types.NodeFunction)
	names := make([]string, len(funcs))
	for i, f := range funcs {
		names[i] = f.Name
	}
	assert.ElementsMatch(t, []string{"Greeter.Greet", "format", "Run"}, names)

	classes := nodesByType(ext, types.NodeClass)
	require.Len(t, classes, 1)
	assert.Equal(t, "Greeter", classes[0].Name)

	imports := nodesByType(ext, types.NodeImport)
	assert.Len(t, imports, 2)
	assert.Len(t, edgesByRel(ext, types.RelImports), 2)

	// Greet calls format within the file.
	calls := edgesByRel(ext, types.RelCalls)
	require.NotEmpty(t, calls)
	var found bool
	for _, c := range calls {
		if c.TargetID == nodeID(types.NodeFunction, "demo.go", "format") {
			found = true
		}
	}
	assert.True(t, found, "expected a call edge into format")

	// Every entity hangs off the file node.
	contains := edgesByRel(ext, types.RelContains)
	assert.Len(t, contains, len(funcs)+len(classes))
}

func TestExtract_MethodAndFunctionShareName(t *testing.T) {
	const src = `package demo

func render() string {
	return "free"
}

type Page struct{}

func (p *Page) render() string {
	return "page"
}

func Run() string {
	return render()
}
`
	ext, err := NewExtractor().Extract(sourceFile("page.go", "go", src))
	require.NoError(t, err)

	funcs := nodesByType(ext, types.NodeFunction)
	names := make([]string, len(funcs))
	for i, f := range funcs {
		names[i] = f.Name
	}
	assert.ElementsMatch(t, []string{"render", "Page.render", "Run"}, names)

	// The identifier call resolves to the free function, not the method
	// declared later under the same name.
	calls := edgesByRel(ext, types.RelCalls)
	require.Len(t, calls, 1)
	assert.Equal(t, nodeID(types.NodeFunction, "page.go", "Run"), calls[0].SourceID)
	assert.Equal(t, nodeID(types.NodeFunction, "page.go", "render"), calls[0].TargetID)
}

func TestExtract_PythonFile(t *testing.T) {
	ext, err := NewExtractor().Extract(sourceFile("app.py", "python", pythonFixture))
	require.NoError(t, err)

	classes := nodesByType(ext, types.NodeClass)
	classNames := make([]string, len(classes))
	for i, c := range classes {
		classNames[i] = c.Name
	}
	assert.ElementsMatch(t, []string{"Base", "Derived"}, classNames)

	inherits := edgesByRel(ext, types.RelInherits)
	require.Len(t, inherits, 1)
	assert.Equal(t, nodeID(types.NodeClass, "app.py", "Derived"), inherits[0].SourceID)
	assert.Equal(t, nodeID(types.NodeClass, "app.py", "Base"), inherits[0].TargetID)

	imports := nodesByType(ext, types.NodeImport)
	assert.Len(t, imports, 2)

	funcs := nodesByType(ext, types.NodeFunction)
	funcNames := make([]string, len(funcs))
	for i, f := range funcs {
		funcNames[i] = f.Name
	}
	assert.Contains(t, funcNames, "main")
}

func TestExtract_UnknownLanguageFileNodeOnly(t *testing.T) {
	ext, err := NewExtractor().Extract(sourceFile("notes.txt", "text", "just prose\n"))
	require.NoError(t, err)
	require.Len(t, ext.Nodes, 1)
	assert.Equal(t, types.NodeFile, ext.Nodes[0].NodeType)
	assert.Empty(t, ext.Edges)
}

func TestExtract_Deterministic(t *testing.T) {
	file := sourceFile("demo.go", "go", goFixture)
	a, err := NewExtractor().Extract(file)
	require.NoError(t, err)
	b, err := NewExtractor().Extract(file)
	require.NoError(t, err)
	assert.Equal(t, a.Nodes, b.Nodes)
	assert.Equal(t, a.Edges, b.Edges)
}

func TestApply_LoadsExtractionIntoGraph(t *testing.T) {
	g := New(0)
	ext, err := NewExtractor().Extract(sourceFile("demo.go", "go", goFixture))
	require.NoError(t, err)
	require.NoError(t, g.Apply(ext))

	assert.Equal(t, len(ext.Nodes), g.NodeCount())
	assert.Equal(t, len(ext.Edges), g.EdgeCount())

	// Re-applying the same extraction does not duplicate anything.
	require.NoError(t, g.Apply(ext))
	assert.Equal(t, len(ext.Nodes), g.NodeCount())
	assert.Equal(t, len(ext.Edges), g.EdgeCount())
}

func TestMirror_SaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.db")
	mirror, err := OpenMirror(path)
	require.NoError(t, err)
	defer mirror.Close()

	g := New(0)
	ext, err := NewExtractor().Extract(sourceFile("demo.go", "go", goFixture))
	require.NoError(t, err)
	require.NoError(t, g.Apply(ext))

	ctx := context.Background()
	require.NoError(t, mirror.Save(ctx, g))

	restored := New(0)
	require.NoError(t, mirror.Load(ctx, restored))
	assert.Equal(t, g.NodeCount(), restored.NodeCount())
	assert.Equal(t, g.EdgeCount(), restored.EdgeCount())

	// A second save replaces, not appends.
	require.NoError(t, mirror.Save(ctx, restored))
	again := New(0)
	require.NoError(t, mirror.Load(ctx, again))
	assert.Equal(t, g.NodeCount(), again.NodeCount())
}
