package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"regexp"
	"strings"

	"github.com/lodestone-ai/lodestone/pkg/types"
)

// Extraction holds the nodes and edges found in one source file.
type Extraction struct {
	Nodes []types.GraphNode
	Edges []types.GraphEdge
}

// Extractor builds graph structure from source files. Go files get a full
// AST pass; python and javascript get line-based extraction; anything else
// yields a single file node so the graph still covers the whole tree.
type Extractor struct {
	fset *token.FileSet
}

// NewExtractor creates an Extractor.
func NewExtractor() *Extractor {
	return &Extractor{fset: token.NewFileSet()}
}

// Extract parses file and returns its nodes and edges. Every extraction
// includes the file node; entity nodes hang off it with contains edges and
// imports become import nodes with imports edges.
func (e *Extractor) Extract(file types.SourceFile) (*Extraction, error) {
	ext := &Extraction{}
	fileID := nodeID(types.NodeFile, file.RelativePath, file.RelativePath)
	ext.Nodes = append(ext.Nodes, types.GraphNode{
		ID:        fileID,
		NodeType:  types.NodeFile,
		Name:      file.RelativePath,
		FilePath:  file.RelativePath,
		Language:  file.Language,
		StartLine: 1,
		EndLine:   strings.Count(file.RawText, "\n") + 1,
	})

	switch file.Language {
	case "go":
		if err := e.extractGo(file, fileID, ext); err != nil {
			return nil, err
		}
	case "python":
		extractWithPatterns(file, fileID, pythonPatterns, ext)
	case "javascript", "typescript":
		extractWithPatterns(file, fileID, javascriptPatterns, ext)
	}

	return ext, nil
}

// extractGo walks the Go AST collecting functions, methods, types and
// imports. Call edges are resolved within the file by callee name.
func (e *Extractor) extractGo(file types.SourceFile, fileID string, ext *Extraction) error {
	parsed, err := parser.ParseFile(e.fset, file.RelativePath, file.RawText, parser.ParseComments)
	if err != nil && parsed == nil {
		return fmt.Errorf("parse %s: %w", file.RelativePath, err)
	}

	for _, imp := range parsed.Imports {
		path := strings.Trim(imp.Path.Value, `"`)
		impID := nodeID(types.NodeImport, path, path)
		ext.Nodes = append(ext.Nodes, types.GraphNode{
			ID:       impID,
			NodeType: types.NodeImport,
			Name:     path,
			FilePath: file.RelativePath,
			Language: file.Language,
		})
		ext.Edges = append(ext.Edges, types.GraphEdge{
			SourceID: fileID, TargetID: impID,
			Relationship: types.RelImports,
			Weight:       1, Confidence: 1,
		})
	}

	// First pass: declarations, so call edges can resolve by name.
	funcIDs := make(map[string]string)
	for _, decl := range parsed.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			name := d.Name.Name
			if d.Recv != nil && len(d.Recv.List) > 0 {
				name = receiverName(d.Recv.List[0].Type) + "." + name
			}
			id := nodeID(types.NodeFunction, file.RelativePath, name)
			funcIDs[name] = id
			ext.Nodes = append(ext.Nodes, types.GraphNode{
				ID:        id,
				NodeType:  types.NodeFunction,
				Name:      name,
				FilePath:  file.RelativePath,
				Language:  file.Language,
				StartLine: e.fset.Position(d.Pos()).Line,
				EndLine:   e.fset.Position(d.End()).Line,
			})
			ext.Edges = append(ext.Edges, containsEdge(fileID, id))
		case *ast.GenDecl:
			if d.Tok != token.TYPE {
				continue
			}
			for _, spec := range d.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				id := nodeID(types.NodeClass, file.RelativePath, ts.Name.Name)
				ext.Nodes = append(ext.Nodes, types.GraphNode{
					ID:        id,
					NodeType:  types.NodeClass,
					Name:      ts.Name.Name,
					FilePath:  file.RelativePath,
					Language:  file.Language,
					StartLine: e.fset.Position(ts.Pos()).Line,
					EndLine:   e.fset.Position(ts.End()).Line,
				})
				ext.Edges = append(ext.Edges, containsEdge(fileID, id))
			}
		}
	}

	// Second pass: call edges between functions declared in this file.
	for _, decl := range parsed.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Body == nil {
			continue
		}
		callerName := fn.Name.Name
		if fn.Recv != nil && len(fn.Recv.List) > 0 {
			callerName = receiverName(fn.Recv.List[0].Type) + "." + callerName
		}
		callerID := funcIDs[callerName]
		seen := make(map[string]bool)
		ast.Inspect(fn.Body, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}
			ident, ok := call.Fun.(*ast.Ident)
			if !ok {
				return true
			}
			calleeID, ok := funcIDs[ident.Name]
			if !ok || calleeID == callerID || seen[calleeID] {
				return true
			}
			seen[calleeID] = true
			ext.Edges = append(ext.Edges, types.GraphEdge{
				SourceID: callerID, TargetID: calleeID,
				Relationship: types.RelCalls,
				Weight:       1, Confidence: 0.9,
			})
			return true
		})
	}

	return nil
}

func receiverName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return receiverName(t.X)
	case *ast.IndexExpr:
		return receiverName(t.X)
	default:
		return "recv"
	}
}

// languagePatterns drives regex extraction for languages without an AST
// parser. Confidence is lower than AST-derived structure.
type languagePatterns struct {
	function *regexp.Regexp
	class    *regexp.Regexp
	imports  *regexp.Regexp
	inherits *regexp.Regexp
}

var pythonPatterns = languagePatterns{
	function: regexp.MustCompile(`^\s*(?:async\s+)?def\s+(\w+)`),
	class:    regexp.MustCompile(`^\s*class\s+(\w+)`),
	imports:  regexp.MustCompile(`^\s*(?:from\s+([\w.]+)\s+import|import\s+([\w.]+))`),
	inherits: regexp.MustCompile(`^\s*class\s+\w+\s*\(\s*(\w+)`),
}

var javascriptPatterns = languagePatterns{
	function: regexp.MustCompile(`^\s*(?:export\s+)?(?:async\s+)?function\s+(\w+)|^\s*(?:export\s+)?const\s+(\w+)\s*=\s*(?:async\s*)?\(`),
	class:    regexp.MustCompile(`^\s*(?:export\s+)?class\s+(\w+)`),
	imports:  regexp.MustCompile(`^\s*import\s+.*from\s+['"]([^'"]+)['"]|require\(['"]([^'"]+)['"]\)`),
	inherits: regexp.MustCompile(`^\s*(?:export\s+)?class\s+\w+\s+extends\s+(\w+)`),
}

const regexConfidence = 0.6

func extractWithPatterns(file types.SourceFile, fileID string, patterns languagePatterns, ext *Extraction) {
	classIDs := make(map[string]string)
	lines := strings.Split(file.RawText, "\n")

	for lineNo, line := range lines {
		if m := patterns.class.FindStringSubmatch(line); m != nil {
			name := firstGroup(m)
			id := nodeID(types.NodeClass, file.RelativePath, name)
			classIDs[name] = id
			ext.Nodes = append(ext.Nodes, types.GraphNode{
				ID:        id,
				NodeType:  types.NodeClass,
				Name:      name,
				FilePath:  file.RelativePath,
				Language:  file.Language,
				StartLine: lineNo + 1,
				EndLine:   lineNo + 1,
			})
			ext.Edges = append(ext.Edges, containsEdge(fileID, id))
			continue
		}
		if m := patterns.function.FindStringSubmatch(line); m != nil {
			name := firstGroup(m)
			id := nodeID(types.NodeFunction, file.RelativePath, name)
			ext.Nodes = append(ext.Nodes, types.GraphNode{
				ID:        id,
				NodeType:  types.NodeFunction,
				Name:      name,
				FilePath:  file.RelativePath,
				Language:  file.Language,
				StartLine: lineNo + 1,
				EndLine:   lineNo + 1,
			})
			ext.Edges = append(ext.Edges, containsEdge(fileID, id))
			continue
		}
		if m := patterns.imports.FindStringSubmatch(line); m != nil {
			path := firstGroup(m)
			impID := nodeID(types.NodeImport, path, path)
			ext.Nodes = append(ext.Nodes, types.GraphNode{
				ID:       impID,
				NodeType: types.NodeImport,
				Name:     path,
				FilePath: file.RelativePath,
				Language: file.Language,
			})
			ext.Edges = append(ext.Edges, types.GraphEdge{
				SourceID: fileID, TargetID: impID,
				Relationship: types.RelImports,
				Weight:       1, Confidence: regexConfidence,
			})
		}
	}

	// Inheritance edges resolve only to classes declared in the same file.
	for _, line := range lines {
		m := patterns.inherits.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		parent := firstGroup(m)
		parentID, ok := classIDs[parent]
		if !ok {
			continue
		}
		cm := patterns.class.FindStringSubmatch(line)
		if cm == nil {
			continue
		}
		childID, ok := classIDs[firstGroup(cm)]
		if !ok || childID == parentID {
			continue
		}
		ext.Edges = append(ext.Edges, types.GraphEdge{
			SourceID: childID, TargetID: parentID,
			Relationship: types.RelInherits,
			Weight:       1, Confidence: regexConfidence,
		})
	}
}

func firstGroup(m []string) string {
	for _, g := range m[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}

func containsEdge(fileID, childID string) types.GraphEdge {
	return types.GraphEdge{
		SourceID: fileID, TargetID: childID,
		Relationship: types.RelContains,
		Weight:       1, Confidence: 1,
	}
}

// nodeID derives a stable ID from type, file and name so re-extraction of
// an unchanged file produces identical nodes.
func nodeID(nodeType types.NodeType, filePath, name string) string {
	h := sha256.Sum256([]byte(string(nodeType) + "|" + filePath + "|" + name))
	return hex.EncodeToString(h[:8])
}

// Apply loads an extraction into the graph, replacing any previous
// structure for the same file.
func (g *Graph) Apply(ext *Extraction) error {
	for _, node := range ext.Nodes {
		if err := g.UpsertNode(node); err != nil {
			return err
		}
	}
	for _, edge := range ext.Edges {
		if err := g.AddEdge(edge); err != nil {
			return err
		}
	}
	return nil
}
