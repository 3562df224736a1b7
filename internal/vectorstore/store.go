package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lodestone-ai/lodestone/internal/log"
	"github.com/lodestone-ai/lodestone/pkg/types"
)

// Defaults for store options.
const (
	DefaultBatchSize   = 100
	DefaultConcurrency = 4
	DefaultAlpha       = 0.7
	DefaultCacheTTL    = 5 * time.Minute

	// overFetchFactor widens each hybrid leg so the blended union still
	// fills the requested limit after merging.
	overFetchFactor = 2
)

// Options configures a Store.
type Options struct {
	// Dimension is the expected embedding dimension.
	Dimension int
	// BatchSize caps records per upsert batch.
	BatchSize int
	// Concurrency bounds parallel upsert batches.
	Concurrency int
	// Alpha weights the vector leg of hybrid scores; the text leg gets 1-Alpha.
	Alpha float64
	// CacheLen and CacheTTL size the search results cache.
	CacheLen int
	CacheTTL time.Duration
}

func (o *Options) applyDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.Alpha <= 0 || o.Alpha > 1 {
		o.Alpha = DefaultAlpha
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = DefaultCacheTTL
	}
}

// Store persists chunk embeddings and serves vector, text and hybrid
// queries over a Backend, with a TTL results cache in front of search.
type Store struct {
	backend Backend
	opts    Options
	cache   *resultsCache
	logger  log.Logger
}

// New creates a store over backend.
func New(backend Backend, opts Options, logger log.Logger) *Store {
	opts.applyDefaults()
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		backend: backend,
		opts:    opts,
		cache:   newResultsCache(opts.CacheLen, opts.CacheTTL),
		logger:  logger,
	}
}

// Init creates the backend schema.
func (s *Store) Init(ctx context.Context) error {
	return s.backend.EnsureSchema(ctx)
}

// StoreBatch upserts records in bounded-concurrency batches. Vector
// dimensions are validated up front so a partial write cannot be caused by
// a malformed record deep in the slice.
func (s *Store) StoreBatch(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return ErrNoRecords
	}
	for i, r := range records {
		if len(r.Vector) != s.opts.Dimension {
			return fmt.Errorf("%w: record %d has dimension %d, want %d",
				ErrDimensionMismatch, i, len(r.Vector), s.opts.Dimension)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for start := 0; start < len(records); start += s.opts.BatchSize {
		end := min(start+s.opts.BatchSize, len(records))
		batch := records[start:end]
		g.Go(func() error {
			return s.backend.Upsert(ctx, batch)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.logger.Debug("stored records", "count", len(records))
	return nil
}

// Cache key kinds, separating pure-vector and hybrid entries.
const (
	queryKindVector = "vector"
	queryKindHybrid = "hybrid"
)

// Search runs a pure vector similarity query. Hits scoring below
// req.ScoreThreshold are dropped, and repeats within the cache TTL are
// served from cache.
func (s *Store) Search(ctx context.Context, vector []float32, req types.QueryRequest) ([]types.ScoredChunk, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	filter := filterFromRequest(req)

	key := s.cache.key(queryKindVector, "", vector, filter, limit, 0, req.ScoreThreshold)
	if cached, ok := s.cache.get(key); ok {
		return cached, nil
	}

	hits, err := s.backend.VectorSearch(ctx, vector, filter, limit)
	if err != nil {
		return nil, err
	}
	results := applyThreshold(hits, req.ScoreThreshold)

	s.cache.set(key, results)
	return results, nil
}

// HybridSearch blends vector similarity with full-text relevance:
// score = alpha*vector + (1-alpha)*text, unioned by chunk ID. Both legs
// over-fetch by a factor of two before blending; blended hits below
// req.ScoreThreshold are dropped before truncation. If exactly one leg
// fails the other's results are returned alone; only a double failure
// errors. Repeated queries within the cache TTL are served from cache.
func (s *Store) HybridSearch(ctx context.Context, vector []float32, req types.QueryRequest) ([]types.ScoredChunk, error) {
	if req.Text == "" {
		return nil, ErrEmptyQuery
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	filter := filterFromRequest(req)

	key := s.cache.key(queryKindHybrid, req.Text, vector, filter, limit, s.opts.Alpha, req.ScoreThreshold)
	if cached, ok := s.cache.get(key); ok {
		return cached, nil
	}

	fetch := limit * overFetchFactor
	vecHits, vecErr := s.backend.VectorSearch(ctx, vector, filter, fetch)
	textHits, textErr := s.backend.TextSearch(ctx, req.Text, filter, fetch)

	if vecErr != nil && textErr != nil {
		return nil, fmt.Errorf("%w: vector: %v; text: %v", ErrBothLegsFailed, vecErr, textErr)
	}
	if vecErr != nil {
		s.logger.Warn("vector leg failed, using text results only", "error", vecErr)
	}
	if textErr != nil {
		s.logger.Warn("text leg failed, using vector results only", "error", textErr)
	}

	results := applyThreshold(s.blend(vecHits, textHits), req.ScoreThreshold)
	if len(results) > limit {
		results = results[:limit]
	}

	s.cache.set(key, results)
	return results, nil
}

// applyThreshold drops hits scoring below threshold; zero keeps everything.
func applyThreshold(hits []types.ScoredChunk, threshold float64) []types.ScoredChunk {
	if threshold <= 0 {
		return hits
	}
	kept := hits[:0]
	for _, h := range hits {
		if h.Score >= threshold {
			kept = append(kept, h)
		}
	}
	return kept
}

// blend unions the two legs by chunk ID and combines their scores. A chunk
// present in only one leg contributes zero from the other.
func (s *Store) blend(vecHits, textHits []types.ScoredChunk) []types.ScoredChunk {
	type blended struct {
		chunk     types.Chunk
		vecScore  float64
		textScore float64
	}

	merged := make(map[string]*blended, len(vecHits)+len(textHits))
	for _, h := range vecHits {
		merged[h.Chunk.ID] = &blended{chunk: h.Chunk, vecScore: h.Score}
	}
	for _, h := range textHits {
		if entry, ok := merged[h.Chunk.ID]; ok {
			entry.textScore = h.Score
		} else {
			merged[h.Chunk.ID] = &blended{chunk: h.Chunk, textScore: h.Score}
		}
	}

	results := make([]types.ScoredChunk, 0, len(merged))
	for _, entry := range merged {
		results = append(results, types.ScoredChunk{
			Chunk: entry.chunk,
			Score: s.opts.Alpha*entry.vecScore + (1-s.opts.Alpha)*entry.textScore,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
	return results
}

// DeleteByPath removes a file's chunks and drops cached results that may
// reference them.
func (s *Store) DeleteByPath(ctx context.Context, path string) error {
	if err := s.backend.DeleteByPath(ctx, path); err != nil {
		return err
	}
	s.cache.purge()
	return nil
}

// Count returns the number of stored chunks.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.backend.Count(ctx)
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func filterFromRequest(req types.QueryRequest) Filter {
	return Filter{Languages: req.Languages, PathPrefixes: req.Paths}
}
