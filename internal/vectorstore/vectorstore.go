package vectorstore

import (
	"context"
	"errors"

	"github.com/lodestone-ai/lodestone/pkg/types"
)

// Sentinel errors for store operations.
var (
	ErrEmptyQuery        = errors.New("empty query")
	ErrNoRecords         = errors.New("no records to store")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrBothLegsFailed    = errors.New("vector and text search both failed")
)

// Record pairs a chunk with its embedding vector for storage.
type Record struct {
	Chunk  types.Chunk
	Vector []float32
}

// Filter narrows search to matching chunks. Empty slices match everything.
type Filter struct {
	Languages    []string
	PathPrefixes []string
}

// Backend is the persistence layer behind a Store. PGBackend is the
// production implementation; tests substitute an in-memory one.
type Backend interface {
	// EnsureSchema creates the collection schema if missing.
	EnsureSchema(ctx context.Context) error

	// Upsert inserts or replaces records by chunk ID.
	Upsert(ctx context.Context, records []Record) error

	// VectorSearch returns up to limit chunks nearest to vector, best first,
	// with similarity scores in [0, 1].
	VectorSearch(ctx context.Context, vector []float32, filter Filter, limit int) ([]types.ScoredChunk, error)

	// TextSearch returns up to limit chunks ranked by full-text relevance.
	TextSearch(ctx context.Context, query string, filter Filter, limit int) ([]types.ScoredChunk, error)

	// DeleteByPath removes all chunks for a source file.
	DeleteByPath(ctx context.Context, path string) error

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int64, error)

	Close() error
}
