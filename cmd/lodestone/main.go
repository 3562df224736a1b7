package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/lodestone-ai/lodestone/internal/chunker"
	"github.com/lodestone-ai/lodestone/internal/config"
	"github.com/lodestone-ai/lodestone/internal/embedder"
	"github.com/lodestone-ai/lodestone/internal/graph"
	"github.com/lodestone-ai/lodestone/internal/indexer"
	"github.com/lodestone-ai/lodestone/internal/log"
	"github.com/lodestone-ai/lodestone/internal/perf"
	"github.com/lodestone-ai/lodestone/internal/vectorstore"
	"github.com/lodestone-ai/lodestone/pkg/types"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to config file")
		root        = flag.String("root", ".", "directory to index")
		strategy    = flag.String("strategy", "fixed", "chunking strategy: fixed|sentence|semantic|hierarchical")
		jsonLogs    = flag.Bool("json-logs", false, "emit JSON logs")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("lodestone %s (built %s)\n", version, buildTime)
		return
	}

	if err := run(*configPath, *root, *strategy, *jsonLogs); err != nil {
		fmt.Fprintf(os.Stderr, "lodestone: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, root, strategyName string, jsonLogs bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := log.New(log.Config{JSON: jsonLogs})
	logger.Info("lodestone starting", "version", version, "root", root)

	strat, err := chunker.ParseStrategy(strategyName)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Embedding engine. Without a configured endpoint the deterministic
	// local provider is used, which needs no network.
	var provider embedder.Provider
	if cfg.EmbedEndpoint != "" {
		provider = embedder.NewHTTPProvider(cfg.EmbedEndpoint, cfg.EmbedAPIKey)
	} else {
		logger.Warn("no embed_endpoint configured, using local provider")
		provider = embedder.NewLocalProvider(cfg.EmbeddingDim)
	}
	engine, err := embedder.NewEngine(provider, embedder.Config{
		Model:            cfg.EmbeddingModel,
		FallbackModels:   cfg.FallbackModels,
		CacheLen:         cfg.EmbeddingCacheLen,
		QuantizationBits: cfg.QuantizationBits,
		Preprocess:       &embedder.Preprocessor{PrefixLanguage: true},
	}, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	// Vector store.
	if cfg.VectorDSN == "" {
		return fmt.Errorf("vector_dsn is required (postgres with pgvector)")
	}
	backend, err := vectorstore.NewPGBackend(ctx, cfg.VectorDSN, cfg.Collection, cfg.EmbeddingDim)
	if err != nil {
		return err
	}
	store := vectorstore.New(backend, vectorstore.Options{
		Dimension:   cfg.EmbeddingDim,
		BatchSize:   cfg.StoreBatchSize,
		Concurrency: cfg.StoreConcurrency,
		Alpha:       cfg.HybridAlpha,
		CacheLen:    cfg.ResultsCacheLen,
		CacheTTL:    cfg.ResultsCacheTTL,
	}, logger)
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("init vector store: %w", err)
	}

	// Graph with its durable mirror.
	g := graph.New(cfg.GraphQueryCacheLen)
	mirror, err := graph.OpenMirror(cfg.GraphMirrorPath)
	if err != nil {
		return fmt.Errorf("open graph mirror: %w", err)
	}
	defer mirror.Close()
	if err := mirror.Load(ctx, g); err != nil {
		logger.Warn("graph mirror load failed, starting empty", "error", err)
	}

	tracker := perf.New(cfg.SampleInterval, logger)
	tracker.Start(ctx)
	defer tracker.Stop()

	ch := chunker.New(chunker.NewBPECounter(), chunker.Options{
		HierarchyLevels:        cfg.HierarchyLevels,
		HierarchyLinkThreshold: cfg.HierarchyLinkThreshold,
		MaxChunksPerFile:       cfg.MaxChunksPerFile,
	}, logger)

	ix, err := indexer.New(ch, engine, store, g, mirror, tracker, indexer.Options{
		Workers:          cfg.Workers,
		Strategy:         strat,
		ChunkSize:        cfg.ChunkSize,
		OverlapRatio:     cfg.OverlapRatio,
		QualityThreshold: cfg.QualityThreshold,
	}, logger)
	if err != nil {
		return err
	}

	files, err := collectFiles(root)
	if err != nil {
		return fmt.Errorf("collect files: %w", err)
	}
	logger.Info("collected files", "count", len(files))

	start := time.Now()
	summary, err := ix.Run(ctx, files)
	if err != nil {
		return err
	}
	logger.Info("run complete", "duration", time.Since(start))

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// languageByExt maps file extensions to the languages the engines know.
var languageByExt = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".ts":   "typescript",
	".java": "java",
	".rs":   "rust",
	".c":    "c",
	".cc":   "cpp",
	".cpp":  "cpp",
	".rb":   "ruby",
	".sh":   "shell",
	".md":   "markdown",
}

// maxFileSize skips generated or vendored blobs.
const maxFileSize = 1 << 20

// collectFiles walks root and builds the file stream the indexer consumes.
func collectFiles(root string) ([]types.SourceFile, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	var files []types.SourceFile
	err = filepath.WalkDir(abs, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") || name == "node_modules" || name == "vendor" {
				return filepath.SkipDir
			}
			return nil
		}
		language, ok := languageByExt[filepath.Ext(name)]
		if !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxFileSize {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(abs, path)
		if err != nil {
			rel = path
		}
		files = append(files, types.SourceFile{
			AbsolutePath: path,
			RelativePath: rel,
			Language:     language,
			SizeBytes:    info.Size(),
			RawText:      string(raw),
		})
		return nil
	})
	return files, err
}
