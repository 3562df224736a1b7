package types

// NodeType classifies a code entity in the relationship graph.
type NodeType string

const (
	NodeFunction NodeType = "function"
	NodeClass    NodeType = "class"
	NodeModule   NodeType = "module"
	NodeFile     NodeType = "file"
	NodeImport   NodeType = "import"
)

// RelationshipType classifies an edge. Multiple edges with different
// relationship types may connect the same node pair.
type RelationshipType string

const (
	RelCalls    RelationshipType = "calls"
	RelInherits RelationshipType = "inherits"
	RelImports  RelationshipType = "imports"
	RelContains RelationshipType = "contains"
)

// GraphNode is a code entity extracted from a source file.
type GraphNode struct {
	ID        string
	NodeType  NodeType
	Name      string
	FilePath  string
	Language  string
	StartLine int
	EndLine   int
	Metadata  map[string]string
}

// GraphEdge is a directed, typed relationship between two nodes. Both
// endpoints must exist before the edge is added.
type GraphEdge struct {
	SourceID     string
	TargetID     string
	Relationship RelationshipType
	Weight       float64
	Confidence   float64
}
