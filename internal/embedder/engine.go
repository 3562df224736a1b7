package embedder

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/lodestone-ai/lodestone/internal/log"
)

// Config configures an Engine.
type Config struct {
	// Model is the primary embedding model.
	Model string

	// FallbackModels are tried in order when the primary model fails.
	// Embeddings they produce are flagged Fallback.
	FallbackModels []string

	// CacheLen is the LRU capacity of the embedding cache.
	CacheLen int

	// QuantizationBits enables b-bit scalar quantization when > 0. Vectors
	// are dequantized before storage; the flag records the precision loss.
	QuantizationBits int

	// Preprocess strips comments/docstrings per language before embedding
	// when non-nil. The original chunk text is never mutated.
	Preprocess *Preprocessor
}

// Engine generates embeddings with caching, a model fallback chain and
// optional quantization. It is safe for concurrent use.
type Engine struct {
	provider Provider
	cfg      Config
	cache    *Cache
	logger   log.Logger

	cacheHits     atomic.Int64
	cacheMisses   atomic.Int64
	providerCalls atomic.Int64
	fallbacks     atomic.Int64
}

// NewEngine creates an embedding engine over the given provider.
func NewEngine(provider Provider, cfg Config, logger log.Logger) (*Engine, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: nil provider", ErrInvalidInput)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: empty model", ErrInvalidInput)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Engine{
		provider: provider,
		cfg:      cfg,
		cache:    NewCache(cfg.CacheLen),
		logger:   logger,
	}, nil
}

// Embed returns the embedding for one text, from cache when possible.
func (e *Engine) Embed(ctx context.Context, text, language string) (*Embedding, error) {
	embs, err := e.EmbedBatch(ctx, []string{text}, language)
	if err != nil {
		return nil, err
	}
	return embs[0], nil
}

// EmbedBatch embeds texts, serving cached entries without a provider call
// and batching the rest. Results are returned in input order.
func (e *Engine) EmbedBatch(ctx context.Context, texts []string, language string) ([]*Embedding, error) {
	if err := ValidateTexts(texts); err != nil {
		return nil, err
	}

	prepared := make([]string, len(texts))
	for i, text := range texts {
		if e.cfg.Preprocess != nil {
			prepared[i] = e.cfg.Preprocess.Apply(text, language)
		} else {
			prepared[i] = text
		}
	}

	results := make([]*Embedding, len(texts))
	var missIdx []int
	for i, text := range prepared {
		hash := ComputeHash(e.cfg.Model, text)
		if emb, ok := e.cache.Get(hash); ok {
			emb.CacheHit = true
			results[i] = emb
			e.cacheHits.Add(1)
			continue
		}
		e.cacheMisses.Add(1)
		missIdx = append(missIdx, i)
	}

	if len(missIdx) == 0 {
		return results, nil
	}

	missTexts := make([]string, len(missIdx))
	for i, idx := range missIdx {
		missTexts[i] = prepared[idx]
	}

	vectors, model, err := e.embedWithFallback(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	fallback := model != e.cfg.Model

	for i, idx := range missIdx {
		vector := vectors[i]
		quantized := false
		if e.cfg.QuantizationBits > 0 {
			vector = Dequantize(Quantize(vector, e.cfg.QuantizationBits))
			quantized = true
		}

		// The cache is keyed by the primary model so a later recovery of the
		// primary does not duplicate entries for unchanged content.
		hash := ComputeHash(e.cfg.Model, prepared[idx])
		emb := &Embedding{
			Vector:    vector,
			Dimension: len(vector),
			Model:     model,
			Hash:      hash,
			Quantized: quantized,
			Fallback:  fallback,
		}
		e.cache.Set(hash, emb)
		results[idx] = emb
	}

	return results, nil
}

// embedWithFallback tries the primary model, then each fallback model in
// order. It fails only when every model has failed.
func (e *Engine) embedWithFallback(ctx context.Context, texts []string) ([][]float32, string, error) {
	models := append([]string{e.cfg.Model}, e.cfg.FallbackModels...)

	var lastErr error
	for i, model := range models {
		e.providerCalls.Add(1)
		vectors, err := e.provider.Embed(ctx, texts, model)
		if err == nil {
			if i > 0 {
				e.fallbacks.Add(1)
				e.logger.Warn("primary embedding model unavailable, used fallback",
					"primary", e.cfg.Model, "model", model)
			}
			return vectors, model, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		e.logger.Debug("embedding model failed", "model", model, "error", err)
	}

	return nil, "", fmt.Errorf("%w: %v", ErrAllModelsFailed, lastErr)
}

// Stats returns engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		CacheHits:     e.cacheHits.Load(),
		CacheMisses:   e.cacheMisses.Load(),
		ProviderCalls: e.providerCalls.Load(),
		Fallbacks:     e.fallbacks.Load(),
	}
}

// CacheLen returns the number of cached embeddings.
func (e *Engine) CacheLen() int {
	return e.cache.Len()
}

// Close releases the underlying provider.
func (e *Engine) Close() error {
	return e.provider.Close()
}
