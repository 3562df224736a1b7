package types

import "time"

// SourceFile is the unit of input consumed from the repository acquisition
// layer. RawText is the full file content; the engine never touches disk for
// content it was handed.
type SourceFile struct {
	AbsolutePath string
	RelativePath string
	Language     string
	SizeBytes    int64
	RawText      string
}

// QueryRequest is a search request from a collaborator.
type QueryRequest struct {
	Text      string
	Languages []string
	Paths     []string
	Limit     int

	// ScoreThreshold drops hits scoring below it. Zero disables the cut.
	ScoreThreshold float64
}

// ScoredChunk pairs a chunk with its query relevance score.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// ContextSelection is the token-bounded subset of candidate chunks assembled
// for one query. Ephemeral; never persisted.
type ContextSelection struct {
	SelectedChunks  []ScoredChunk
	TokensUsed      int
	TokensAvailable int
	Utilization     float64
	Fragmentation   float64
	Compression     float64
}

// FileError records a recoverable per-file failure during an indexing run.
type FileError struct {
	Path  string
	Phase string
	Err   string
}

// QualityReport aggregates chunking quality across a run.
type QualityReport struct {
	MeanQualityScore float64
	MeanImportance   float64
	FallbackResults  int
	TotalResults     int
}

// RunSummary is the per-run output produced for collaborators.
type RunSummary struct {
	RunID          string
	TotalFiles     int
	ProcessedFiles int
	SkippedFiles   int
	FailedFiles    int
	Languages      []string
	ChunksCreated  int
	VectorsStored  int
	GraphNodes     int
	GraphEdges     int
	Quality        QualityReport
	Performance    map[string]float64
	FileErrors     []FileError
	Duration       time.Duration
}
