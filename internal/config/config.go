// Package config loads and validates the process-wide indexing configuration.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables with the LODESTONE_ prefix
//  2. Config file (lodestone.yaml in the working directory or ~/.lodestone)
//  3. Defaults
//
// The configuration is loaded once at orchestrator start and is immutable
// for the duration of a run.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidChunkSize indicates a non-positive chunk size.
	ErrInvalidChunkSize = errors.New("invalid chunk size")

	// ErrInvalidOverlap indicates an overlap ratio outside [0, 1).
	ErrInvalidOverlap = errors.New("invalid overlap ratio")

	// ErrInvalidWorkers indicates a non-positive worker count.
	ErrInvalidWorkers = errors.New("invalid worker count")

	// ErrInvalidCacheSize indicates a non-positive cache capacity.
	ErrInvalidCacheSize = errors.New("invalid cache size")

	// ErrInvalidTierSplit indicates tier percentages that exceed the budget.
	ErrInvalidTierSplit = errors.New("invalid tier split")

	// ErrInvalidThreshold indicates a threshold outside [0, 1].
	ErrInvalidThreshold = errors.New("invalid threshold")

	// ErrMissingModel indicates no embedding model is configured.
	ErrMissingModel = errors.New("missing embedding model")
)

// Config holds all tunables for one indexing process.
type Config struct {
	// Chunking
	ChunkSize              int     `mapstructure:"chunk_size"`
	OverlapRatio           float64 `mapstructure:"overlap_ratio"`
	HierarchyLevels        []int   `mapstructure:"hierarchy_levels"`
	HierarchyLinkThreshold float64 `mapstructure:"hierarchy_link_threshold"`
	MaxChunksPerFile       int     `mapstructure:"max_chunks_per_file"`

	// Embedding
	EmbeddingModel    string   `mapstructure:"embedding_model"`
	FallbackModels    []string `mapstructure:"fallback_models"`
	EmbeddingDim      int      `mapstructure:"embedding_dim"`
	EmbeddingCacheLen int      `mapstructure:"embedding_cache_len"`
	QuantizationBits  int      `mapstructure:"quantization_bits"`
	EmbedEndpoint     string   `mapstructure:"embed_endpoint"`
	EmbedAPIKey       string   `mapstructure:"embed_api_key"`

	// Vector store
	VectorDSN        string        `mapstructure:"vector_dsn"`
	Collection       string        `mapstructure:"collection"`
	ResultsCacheLen  int           `mapstructure:"results_cache_len"`
	ResultsCacheTTL  time.Duration `mapstructure:"results_cache_ttl"`
	HybridAlpha      float64       `mapstructure:"hybrid_alpha"`
	StoreBatchSize   int           `mapstructure:"store_batch_size"`
	StoreConcurrency int           `mapstructure:"store_concurrency"`

	// Graph
	GraphMirrorPath    string `mapstructure:"graph_mirror_path"`
	GraphQueryCacheLen int    `mapstructure:"graph_query_cache_len"`

	// Optimizer
	TierHighPct   float64 `mapstructure:"tier_high_pct"`
	TierMediumPct float64 `mapstructure:"tier_medium_pct"`
	TierLowPct    float64 `mapstructure:"tier_low_pct"`

	// Orchestration
	Workers          int     `mapstructure:"workers"`
	QualityThreshold float64 `mapstructure:"quality_threshold"`

	// Performance tracking
	SampleInterval time.Duration `mapstructure:"sample_interval"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		ChunkSize:              512,
		OverlapRatio:           0.1,
		HierarchyLevels:        []int{512, 1024, 2048},
		HierarchyLinkThreshold: 0.3,
		MaxChunksPerFile:       500,
		EmbeddingModel:         "lodestone-embed-base",
		FallbackModels:         []string{"lodestone-embed-small"},
		EmbeddingDim:           384,
		EmbeddingCacheLen:      10000,
		QuantizationBits:       0,
		Collection:             "chunks",
		ResultsCacheLen:        1000,
		ResultsCacheTTL:        time.Hour,
		HybridAlpha:            0.7,
		StoreBatchSize:         64,
		StoreConcurrency:       4,
		GraphMirrorPath:        "lodestone-graph.db",
		GraphQueryCacheLen:     1000,
		TierHighPct:            0.6,
		TierMediumPct:          0.3,
		TierLowPct:             0.1,
		Workers:                8,
		QualityThreshold:       0.5,
		SampleInterval:         100 * time.Millisecond,
	}
}

// Load reads configuration from file and environment, falling back to
// defaults. A missing config file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("chunk_size", def.ChunkSize)
	v.SetDefault("overlap_ratio", def.OverlapRatio)
	v.SetDefault("hierarchy_levels", def.HierarchyLevels)
	v.SetDefault("hierarchy_link_threshold", def.HierarchyLinkThreshold)
	v.SetDefault("max_chunks_per_file", def.MaxChunksPerFile)
	v.SetDefault("embedding_model", def.EmbeddingModel)
	v.SetDefault("fallback_models", def.FallbackModels)
	v.SetDefault("embedding_dim", def.EmbeddingDim)
	v.SetDefault("embedding_cache_len", def.EmbeddingCacheLen)
	v.SetDefault("quantization_bits", def.QuantizationBits)
	v.SetDefault("embed_endpoint", def.EmbedEndpoint)
	v.SetDefault("embed_api_key", def.EmbedAPIKey)
	v.SetDefault("vector_dsn", def.VectorDSN)
	v.SetDefault("collection", def.Collection)
	v.SetDefault("results_cache_len", def.ResultsCacheLen)
	v.SetDefault("results_cache_ttl", def.ResultsCacheTTL)
	v.SetDefault("hybrid_alpha", def.HybridAlpha)
	v.SetDefault("store_batch_size", def.StoreBatchSize)
	v.SetDefault("store_concurrency", def.StoreConcurrency)
	v.SetDefault("graph_mirror_path", def.GraphMirrorPath)
	v.SetDefault("graph_query_cache_len", def.GraphQueryCacheLen)
	v.SetDefault("tier_high_pct", def.TierHighPct)
	v.SetDefault("tier_medium_pct", def.TierMediumPct)
	v.SetDefault("tier_low_pct", def.TierLowPct)
	v.SetDefault("workers", def.Workers)
	v.SetDefault("quality_threshold", def.QualityThreshold)
	v.SetDefault("sample_interval", def.SampleInterval)

	v.SetEnvPrefix("LODESTONE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("lodestone")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.lodestone")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks all tunables for sane ranges.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size %d", ErrInvalidChunkSize, c.ChunkSize)
	}
	for _, lvl := range c.HierarchyLevels {
		if lvl <= 0 {
			return fmt.Errorf("%w: hierarchy level %d", ErrInvalidChunkSize, lvl)
		}
	}
	if c.OverlapRatio < 0 || c.OverlapRatio >= 1 {
		return fmt.Errorf("%w: %f", ErrInvalidOverlap, c.OverlapRatio)
	}
	if c.Workers <= 0 || c.StoreConcurrency <= 0 {
		return fmt.Errorf("%w: workers=%d store_concurrency=%d", ErrInvalidWorkers, c.Workers, c.StoreConcurrency)
	}
	if c.EmbeddingCacheLen <= 0 || c.ResultsCacheLen <= 0 || c.GraphQueryCacheLen <= 0 {
		return ErrInvalidCacheSize
	}
	if c.EmbeddingModel == "" {
		return ErrMissingModel
	}
	if c.TierHighPct <= 0 || c.TierMediumPct < 0 || c.TierLowPct < 0 ||
		c.TierHighPct+c.TierMediumPct+c.TierLowPct > 1.0+1e-9 {
		return fmt.Errorf("%w: %f/%f/%f", ErrInvalidTierSplit, c.TierHighPct, c.TierMediumPct, c.TierLowPct)
	}
	for _, t := range []float64{c.HierarchyLinkThreshold, c.HybridAlpha, c.QualityThreshold} {
		if t < 0 || t > 1 {
			return fmt.Errorf("%w: %f", ErrInvalidThreshold, t)
		}
	}
	if c.QuantizationBits < 0 || c.QuantizationBits > 16 {
		return fmt.Errorf("%w: quantization_bits %d", ErrInvalidThreshold, c.QuantizationBits)
	}
	return nil
}
