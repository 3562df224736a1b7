package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/lodestone-ai/lodestone/pkg/types"
)

// PGBackend stores chunks and embeddings in Postgres with the pgvector
// extension. Vector search uses cosine distance over an ivfflat index and
// text search uses a tsvector GIN index, so both legs of a hybrid query
// run server-side.
type PGBackend struct {
	pool       *pgxpool.Pool
	collection string
	dimension  int
}

// NewPGBackend connects to dsn and verifies the connection.
func NewPGBackend(ctx context.Context, dsn, collection string, dimension int) (*PGBackend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &PGBackend{pool: pool, collection: collection, dimension: dimension}, nil
}

func (b *PGBackend) EnsureSchema(ctx context.Context) error {
	schema := fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		collection TEXT NOT NULL,
		file_path TEXT NOT NULL,
		language TEXT NOT NULL,
		chunk_type TEXT NOT NULL,
		context_level INT NOT NULL DEFAULT 0,
		start_line INT NOT NULL,
		end_line INT NOT NULL,
		importance DOUBLE PRECISION NOT NULL DEFAULT 0,
		tags TEXT[] NOT NULL DEFAULT '{}',
		content TEXT NOT NULL,
		token_count INT NOT NULL DEFAULT 0,
		content_hash TEXT NOT NULL,
		embedding vector(%d)
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks
		USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
	CREATE INDEX IF NOT EXISTS idx_chunks_content_fts ON chunks
		USING gin (to_tsvector('english', content));
	CREATE INDEX IF NOT EXISTS idx_chunks_collection ON chunks(collection);
	CREATE INDEX IF NOT EXISTS idx_chunks_file_path ON chunks(file_path);
	CREATE INDEX IF NOT EXISTS idx_chunks_language ON chunks(language);
	`, b.dimension)

	_, err := b.pool.Exec(ctx, schema)
	return err
}

func (b *PGBackend) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
	INSERT INTO chunks (id, collection, file_path, language, chunk_type, context_level,
		start_line, end_line, importance, tags, content, token_count, content_hash, embedding)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (id) DO UPDATE SET
		importance = EXCLUDED.importance,
		tags = EXCLUDED.tags,
		content = EXCLUDED.content,
		token_count = EXCLUDED.token_count,
		content_hash = EXCLUDED.content_hash,
		embedding = EXCLUDED.embedding
	`
	for _, r := range records {
		c := r.Chunk
		batch.Queue(query,
			c.ID, b.collection, c.FilePath, c.Language, string(c.ChunkType), c.ContextLevel,
			c.StartLine, c.EndLine, c.ImportanceScore, c.SemanticTags, c.Text,
			c.TokenCount, c.ContentHashHex(), pgvector.NewVector(r.Vector),
		)
	}

	results := b.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert batch: %w", err)
		}
	}
	return nil
}

func (b *PGBackend) VectorSearch(ctx context.Context, vector []float32, filter Filter, limit int) ([]types.ScoredChunk, error) {
	if len(vector) != b.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), b.dimension)
	}

	where, args := b.filterClauses(filter, pgvector.NewVector(vector))
	query := fmt.Sprintf(`
	SELECT %s, 1 - (embedding <=> $1) AS score
	FROM chunks
	WHERE %s AND embedding IS NOT NULL
	ORDER BY embedding <=> $1
	LIMIT %d
	`, chunkColumns, strings.Join(where, " AND "), limit)

	return b.queryScored(ctx, query, args)
}

func (b *PGBackend) TextSearch(ctx context.Context, text string, filter Filter, limit int) ([]types.ScoredChunk, error) {
	where, args := b.filterClauses(filter, text)
	query := fmt.Sprintf(`
	SELECT %s, ts_rank(to_tsvector('english', content), plainto_tsquery('english', $1)) AS score
	FROM chunks
	WHERE %s AND to_tsvector('english', content) @@ plainto_tsquery('english', $1)
	ORDER BY score DESC, id
	LIMIT %d
	`, chunkColumns, strings.Join(where, " AND "), limit)

	return b.queryScored(ctx, query, args)
}

const chunkColumns = `id, file_path, language, chunk_type, context_level,
	start_line, end_line, importance, tags, content, token_count, content_hash`

// filterClauses builds the WHERE conditions shared by both search legs.
// The first positional argument is always the search term.
func (b *PGBackend) filterClauses(filter Filter, term any) ([]string, []any) {
	where := []string{"collection = $2"}
	args := []any{term, b.collection}

	if len(filter.Languages) > 0 {
		args = append(args, filter.Languages)
		where = append(where, fmt.Sprintf("language = ANY($%d)", len(args)))
	}
	if len(filter.PathPrefixes) > 0 {
		prefixes := make([]string, len(filter.PathPrefixes))
		for i, p := range filter.PathPrefixes {
			prefixes[i] = p + "%"
		}
		args = append(args, prefixes)
		where = append(where, fmt.Sprintf("file_path LIKE ANY($%d)", len(args)))
	}
	return where, args
}

func (b *PGBackend) queryScored(ctx context.Context, query string, args []any) ([]types.ScoredChunk, error) {
	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []types.ScoredChunk
	for rows.Next() {
		var sc types.ScoredChunk
		var chunkType, contentHash string
		if err := rows.Scan(
			&sc.Chunk.ID, &sc.Chunk.FilePath, &sc.Chunk.Language, &chunkType,
			&sc.Chunk.ContextLevel, &sc.Chunk.StartLine, &sc.Chunk.EndLine,
			&sc.Chunk.ImportanceScore, &sc.Chunk.SemanticTags, &sc.Chunk.Text,
			&sc.Chunk.TokenCount, &contentHash, &sc.Score,
		); err != nil {
			return nil, err
		}
		sc.Chunk.ChunkType = types.ChunkType(chunkType)
		sc.Chunk.SetContentHashHex(contentHash)
		sc.Chunk.ParentIndex = types.NoParent
		results = append(results, sc)
	}
	return results, rows.Err()
}

func (b *PGBackend) DeleteByPath(ctx context.Context, path string) error {
	_, err := b.pool.Exec(ctx,
		"DELETE FROM chunks WHERE collection = $1 AND file_path = $2", b.collection, path)
	return err
}

func (b *PGBackend) Count(ctx context.Context) (int64, error) {
	var count int64
	err := b.pool.QueryRow(ctx,
		"SELECT count(*) FROM chunks WHERE collection = $1", b.collection).Scan(&count)
	return count, err
}

func (b *PGBackend) Close() error {
	b.pool.Close()
	return nil
}
