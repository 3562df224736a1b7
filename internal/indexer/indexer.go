package indexer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lodestone-ai/lodestone/internal/chunker"
	"github.com/lodestone-ai/lodestone/internal/embedder"
	"github.com/lodestone-ai/lodestone/internal/graph"
	"github.com/lodestone-ai/lodestone/internal/log"
	"github.com/lodestone-ai/lodestone/internal/perf"
	"github.com/lodestone-ai/lodestone/internal/vectorstore"
	"github.com/lodestone-ai/lodestone/pkg/types"
)

// Sentinel errors for run-level failures. Per-file failures never surface
// here; they are recorded in the run summary.
var (
	ErrNoFiles   = errors.New("no files to index")
	ErrRunActive = errors.New("an indexing run is already active")
	ErrNilEngine = errors.New("missing engine dependency")
)

// DefaultWorkers bounds concurrent per-file tasks in each phase.
const DefaultWorkers = 8

// Options configures an indexing run.
type Options struct {
	// Workers bounds per-phase concurrency.
	Workers int
	// Strategy selects the chunking strategy for every file in the run.
	Strategy chunker.Strategy
	// ChunkSize and OverlapRatio parameterize the strategy.
	ChunkSize    int
	OverlapRatio float64
	// QualityThreshold flags runs whose mean chunk quality falls below it.
	QualityThreshold float64
}

func (o *Options) applyDefaults() {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = chunker.DefaultChunkSize
	}
	if o.OverlapRatio < 0 || o.OverlapRatio >= 1 {
		o.OverlapRatio = 0.1
	}
}

// Indexer orchestrates a full indexing run: collect and prioritize files,
// chunk them, embed their unique chunks, then store vectors and graph
// structure, and finally report.
type Indexer struct {
	chunker   *chunker.Chunker
	embedder  *embedder.Engine
	store     *vectorstore.Store
	graph     *graph.Graph
	extractor *graph.Extractor
	mirror    *graph.Mirror
	tracker   *perf.Tracker
	opts      Options
	logger    log.Logger

	state runState

	mu     sync.Mutex
	active bool
	// seenHashes maps file path to the content hash from the last run, so
	// unchanged files are skipped outright.
	seenHashes map[string]string
}

// New creates an Indexer. The mirror and tracker are optional; every other
// dependency is required.
func New(
	ch *chunker.Chunker,
	em *embedder.Engine,
	store *vectorstore.Store,
	g *graph.Graph,
	mirror *graph.Mirror,
	tracker *perf.Tracker,
	opts Options,
	logger log.Logger,
) (*Indexer, error) {
	if ch == nil || em == nil || store == nil || g == nil {
		return nil, ErrNilEngine
	}
	opts.applyDefaults()
	if logger == nil {
		logger = log.NewNop()
	}
	return &Indexer{
		chunker:    ch,
		embedder:   em,
		store:      store,
		graph:      g,
		extractor:  graph.NewExtractor(),
		mirror:     mirror,
		tracker:    tracker,
		opts:       opts,
		logger:     logger,
		seenHashes: make(map[string]string),
	}, nil
}

// State reports the current run phase.
func (ix *Indexer) State() State {
	return ix.state.get()
}

// fileResult carries one file through the phases of a run.
type fileResult struct {
	file    types.SourceFile
	hash    string
	chunks  []types.Chunk
	vectors [][]float32
	result  *types.ChunkingResult
	err     *types.FileError
}

// Run indexes files and returns a summary containing both successes and
// per-file failures. Only an empty file set or cancellation fails the run
// as a whole.
func (ix *Indexer) Run(ctx context.Context, files []types.SourceFile) (*types.RunSummary, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	ix.mu.Lock()
	if ix.active {
		ix.mu.Unlock()
		return nil, ErrRunActive
	}
	ix.active = true
	ix.mu.Unlock()
	defer func() {
		ix.mu.Lock()
		ix.active = false
		ix.mu.Unlock()
		ix.state.set(StateIdle)
	}()

	start := time.Now()
	summary := &types.RunSummary{
		RunID:      uuid.NewString(),
		TotalFiles: len(files),
	}
	ix.logger.Info("indexing run started", "run_id", summary.RunID, "files", len(files))

	ix.state.set(StateCollecting)
	pending := ix.collect(prioritize(files), summary)

	ix.state.set(StateChunking)
	if err := ix.chunkPhase(ctx, pending); err != nil {
		return nil, err
	}

	// Deduplication by content hash ran per file at the end of chunking,
	// so embedding never sees duplicate content from one file.
	ix.state.set(StateEmbedding)
	if err := ix.embedPhase(ctx, pending); err != nil {
		return nil, err
	}

	ix.state.set(StateStoring)
	if err := ix.storePhase(ctx, pending, summary); err != nil {
		return nil, err
	}

	ix.state.set(StateReporting)
	ix.report(pending, summary)
	summary.Duration = time.Since(start)

	ix.logger.Info("indexing run finished",
		"run_id", summary.RunID,
		"processed", summary.ProcessedFiles,
		"skipped", summary.SkippedFiles,
		"failed", summary.FailedFiles,
		"chunks", summary.ChunksCreated,
		"duration", summary.Duration)
	return summary, nil
}

// collect hashes each file and drops ones unchanged since the last run.
func (ix *Indexer) collect(files []types.SourceFile, summary *types.RunSummary) []*fileResult {
	defer ix.timer("collecting")()

	ix.mu.Lock()
	defer ix.mu.Unlock()

	pending := make([]*fileResult, 0, len(files))
	for _, f := range files {
		hash := types.HashContent(f.RawText)
		if prev, ok := ix.seenHashes[f.AbsolutePath]; ok && prev == hash {
			summary.SkippedFiles++
			continue
		}
		pending = append(pending, &fileResult{file: f, hash: hash})
	}
	return pending
}

// chunkPhase chunks every pending file concurrently.
func (ix *Indexer) chunkPhase(ctx context.Context, pending []*fileResult) error {
	defer ix.timer("chunking")()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.opts.Workers)
	for _, fr := range pending {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			overlap := int(float64(ix.opts.ChunkSize) * ix.opts.OverlapRatio)
			result := ix.chunker.Chunk(fr.file, ix.opts.Strategy, ix.opts.ChunkSize, overlap)
			if len(result.Chunks) == 0 {
				fr.err = &types.FileError{
					Path:  fr.file.RelativePath,
					Phase: "chunking",
					Err:   "no chunks produced",
				}
				return nil
			}
			fr.result = result
			fr.chunks = dedupeChunks(result.Chunks)
			return nil
		})
	}
	return g.Wait()
}

// dedupeChunks keeps the first chunk for each content hash.
func dedupeChunks(chunks []types.Chunk) []types.Chunk {
	seen := make(map[[32]byte]bool, len(chunks))
	out := make([]types.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if seen[c.ContentHash] {
			continue
		}
		seen[c.ContentHash] = true
		out = append(out, c)
	}
	return out
}

// embedPhase embeds each file's chunks. Cached content costs no provider
// call, so re-embedding unchanged chunks of a changed file is cheap.
func (ix *Indexer) embedPhase(ctx context.Context, pending []*fileResult) error {
	defer ix.timer("embedding")()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.opts.Workers)
	for _, fr := range pending {
		if fr.err != nil {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fr.vectors = make([][]float32, len(fr.chunks))
			for start := 0; start < len(fr.chunks); start += embedder.MaxBatchSize {
				end := min(start+embedder.MaxBatchSize, len(fr.chunks))
				texts := make([]string, end-start)
				for i, c := range fr.chunks[start:end] {
					texts[i] = c.Text
				}
				embs, err := ix.embedder.EmbedBatch(ctx, texts, fr.file.Language)
				if err != nil {
					fr.err = &types.FileError{
						Path:  fr.file.RelativePath,
						Phase: "embedding",
						Err:   err.Error(),
					}
					return nil
				}
				for i, e := range embs {
					fr.vectors[start+i] = e.Vector
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// storePhase writes vectors and applies graph extractions. Both writes are
// individually idempotent, so a cancelled run leaves a resumable state.
func (ix *Indexer) storePhase(ctx context.Context, pending []*fileResult, summary *types.RunSummary) error {
	defer ix.timer("storing")()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.opts.Workers)
	for _, fr := range pending {
		if fr.err != nil {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			records := make([]vectorstore.Record, len(fr.chunks))
			for i, c := range fr.chunks {
				records[i] = vectorstore.Record{Chunk: c, Vector: fr.vectors[i]}
			}
			if err := ix.store.StoreBatch(ctx, records); err != nil {
				fr.err = &types.FileError{
					Path:  fr.file.RelativePath,
					Phase: "storing",
					Err:   err.Error(),
				}
				return nil
			}

			ext, err := ix.extractor.Extract(fr.file)
			if err != nil {
				fr.err = &types.FileError{
					Path:  fr.file.RelativePath,
					Phase: "graph",
					Err:   err.Error(),
				}
				return nil
			}
			ix.graph.RemoveFile(fr.file.RelativePath)
			if err := ix.graph.Apply(ext); err != nil {
				// A failed apply is a data integrity fault, not a per-file
				// condition.
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if ix.mirror != nil {
		if err := ix.mirror.Save(ctx, ix.graph); err != nil {
			ix.logger.Warn("graph mirror save failed", "error", err)
		}
	}

	summary.GraphNodes = ix.graph.NodeCount()
	summary.GraphEdges = ix.graph.EdgeCount()
	return nil
}

// report aggregates per-file outcomes into the run summary and records the
// content hashes of successful files for incremental skips next run.
func (ix *Indexer) report(pending []*fileResult, summary *types.RunSummary) {
	defer ix.timer("reporting")()

	languages := make(map[string]bool)
	var qualitySum, importanceSum float64
	var importanceCount int

	ix.mu.Lock()
	defer ix.mu.Unlock()

	for _, fr := range pending {
		if fr.err != nil {
			summary.FailedFiles++
			summary.FileErrors = append(summary.FileErrors, *fr.err)
			continue
		}
		summary.ProcessedFiles++
		summary.ChunksCreated += len(fr.chunks)
		summary.VectorsStored += len(fr.chunks)
		languages[fr.file.Language] = true
		ix.seenHashes[fr.file.AbsolutePath] = fr.hash

		summary.Quality.TotalResults++
		qualitySum += fr.result.QualityScore
		if fr.result.Fallback {
			summary.Quality.FallbackResults++
		}
		for _, c := range fr.chunks {
			importanceSum += c.ImportanceScore
			importanceCount++
		}
	}

	for lang := range languages {
		summary.Languages = append(summary.Languages, lang)
	}
	sort.Strings(summary.Languages)

	if summary.Quality.TotalResults > 0 {
		summary.Quality.MeanQualityScore = qualitySum / float64(summary.Quality.TotalResults)
	}
	if importanceCount > 0 {
		summary.Quality.MeanImportance = importanceSum / float64(importanceCount)
	}
	if ix.opts.QualityThreshold > 0 && summary.Quality.MeanQualityScore < ix.opts.QualityThreshold {
		ix.logger.Warn("run quality below threshold",
			"mean_quality", fmt.Sprintf("%.2f", summary.Quality.MeanQualityScore),
			"threshold", ix.opts.QualityThreshold)
	}

	if ix.tracker != nil {
		ix.tracker.AddCounter("files_processed", int64(summary.ProcessedFiles))
		ix.tracker.AddCounter("chunks_created", int64(summary.ChunksCreated))
		summary.Performance = ix.tracker.Snapshot().Flatten()
	}
}

// timer records a phase duration when a tracker is configured.
func (ix *Indexer) timer(phase string) func() {
	if ix.tracker == nil {
		return func() {}
	}
	return ix.tracker.StartTimer(phase)
}
