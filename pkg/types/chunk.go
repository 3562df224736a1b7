package types

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ChunkType identifies the strategy that produced a chunk.
type ChunkType string

const (
	ChunkFixed        ChunkType = "fixed"
	ChunkSentence     ChunkType = "sentence"
	ChunkSemantic     ChunkType = "semantic"
	ChunkHierarchical ChunkType = "hierarchical"
)

// NoParent marks a chunk without a coarser-level parent.
const NoParent = -1

// Chunk is a contiguous slice of file text plus derived metadata, the unit
// of embedding and search. Chunks are immutable once created; hierarchy links
// are stored as slice indices within a single chunking run rather than as
// embedded back-pointers.
type Chunk struct {
	ID        string
	Text      string
	ChunkType ChunkType
	Language  string
	FilePath  string
	StartLine int
	EndLine   int

	// ImportanceScore is clamped to [0.1, 1.0].
	ImportanceScore float64

	// ContextLevel is 0 for the finest granularity, increasing toward the
	// coarsest level of a hierarchical run.
	ContextLevel int

	// ParentIndex points into the next-coarser level's chunk slice, or
	// NoParent. ChildIndexes point into the next-finer level's slice.
	ParentIndex  int
	ChildIndexes []int

	SemanticTags []string
	TokenCount   int
	ContentHash  [32]byte
}

// ComputeID derives a deterministic chunk ID so that re-indexing unchanged
// content yields identical IDs (idempotent vector upserts rely on this).
func (c *Chunk) ComputeID() string {
	h := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%d|%d|%d|%s",
		c.FilePath, c.ChunkType, c.ContextLevel, c.StartLine, c.EndLine, c.Text))
	c.ID = hex.EncodeToString(h[:16])
	return c.ID
}

// ComputeContentHash computes the SHA-256 hash of the chunk text.
func (c *Chunk) ComputeContentHash() {
	c.ContentHash = sha256.Sum256([]byte(c.Text))
}

// ContentHashHex returns the content hash in hex for storage and logging.
func (c *Chunk) ContentHashHex() string {
	return hex.EncodeToString(c.ContentHash[:])
}

// SetContentHashHex restores a content hash from its hex form. Malformed
// input leaves the hash zeroed.
func (c *Chunk) SetContentHashHex(s string) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(c.ContentHash) {
		c.ContentHash = [32]byte{}
		return
	}
	copy(c.ContentHash[:], b)
}

// HashContent fingerprints file content for incremental-indexing skips.
func HashContent(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// Validate performs basic integrity checks on the chunk.
func (c *Chunk) Validate() error {
	if c.Text == "" {
		return errors.New("chunk text cannot be empty")
	}
	if c.StartLine <= 0 || c.EndLine <= 0 {
		return errors.New("line numbers must be positive")
	}
	if c.StartLine > c.EndLine {
		return errors.New("start line must be before or equal to end line")
	}
	if c.ImportanceScore < 0 || c.ImportanceScore > 1 {
		return errors.New("importance score must be in [0,1]")
	}
	switch c.ChunkType {
	case ChunkFixed, ChunkSentence, ChunkSemantic, ChunkHierarchical:
	default:
		return fmt.Errorf("invalid chunk type %q", c.ChunkType)
	}
	return nil
}

// ChunkingMetrics captures per-result timing for quality reporting.
type ChunkingMetrics struct {
	Duration      time.Duration
	ChunksCreated int
	CharsCovered  int
	TotalChars    int
}

// ChunkingResult is the outcome of running one strategy over one file.
// A failed strategy still produces a best-effort result via the fixed-token
// fallback, flagged with Fallback=true and QualityScore 0.3.
type ChunkingResult struct {
	Chunks       []Chunk
	Strategy     ChunkType
	Metadata     map[string]string
	Metrics      ChunkingMetrics
	QualityScore float64
	Fallback     bool
}
