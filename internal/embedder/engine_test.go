package embedder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyProvider fails for models listed in failing and otherwise delegates
// to a LocalProvider. It counts calls per model.
type flakyProvider struct {
	local   *LocalProvider
	failing map[string]bool
	calls   map[string]int
}

func newFlakyProvider(failing ...string) *flakyProvider {
	fp := &flakyProvider{
		local:   NewLocalProvider(0),
		failing: make(map[string]bool),
		calls:   make(map[string]int),
	}
	for _, m := range failing {
		fp.failing[m] = true
	}
	return fp
}

func (p *flakyProvider) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	p.calls[model]++
	if p.failing[model] {
		return nil, errors.New("model unavailable")
	}
	return p.local.Embed(ctx, texts, model)
}

func (p *flakyProvider) Close() error { return nil }

func newTestEngine(t *testing.T, provider Provider, cfg Config) *Engine {
	t.Helper()
	if cfg.Model == "" {
		cfg.Model = "test-model"
	}
	engine, err := NewEngine(provider, cfg, nil)
	require.NoError(t, err)
	return engine
}

func TestEmbed_SecondCallHitsCache(t *testing.T) {
	provider := newFlakyProvider()
	engine := newTestEngine(t, provider, Config{})
	ctx := context.Background()

	first, err := engine.Embed(ctx, "func main() {}", "go")
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := engine.Embed(ctx, "func main() {}", "go")
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Vector, second.Vector, "cached vector must be bit-identical")
	assert.Equal(t, first.Hash, second.Hash)

	// Only the first call reached the provider.
	assert.Equal(t, 1, provider.calls["test-model"])

	stats := engine.Stats()
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(1), stats.CacheMisses)
}

func TestEmbed_CallerMutationDoesNotReachCache(t *testing.T) {
	engine := newTestEngine(t, newFlakyProvider(), Config{})
	ctx := context.Background()

	first, err := engine.Embed(ctx, "shared content", "")
	require.NoError(t, err)
	want := append([]float32(nil), first.Vector...)

	first.Vector[0] = -99

	second, err := engine.Embed(ctx, "shared content", "")
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, want, second.Vector)
}

func TestEmbed_WhitespaceNormalizationSharesCacheEntry(t *testing.T) {
	provider := newFlakyProvider()
	engine := newTestEngine(t, provider, Config{})
	ctx := context.Background()

	_, err := engine.Embed(ctx, "select * from users", "")
	require.NoError(t, err)

	emb, err := engine.Embed(ctx, "  select *\tfrom\n users  ", "")
	require.NoError(t, err)
	assert.True(t, emb.CacheHit)
	assert.Equal(t, 1, provider.calls["test-model"])
}

func TestEmbedBatch_MixedCacheHits(t *testing.T) {
	engine := newTestEngine(t, newFlakyProvider(), Config{})
	ctx := context.Background()

	_, err := engine.Embed(ctx, "alpha", "")
	require.NoError(t, err)

	embs, err := engine.EmbedBatch(ctx, []string{"alpha", "beta"}, "")
	require.NoError(t, err)
	require.Len(t, embs, 2)
	assert.True(t, embs[0].CacheHit)
	assert.False(t, embs[1].CacheHit)
	assert.NotEqual(t, embs[0].Hash, embs[1].Hash)
}

func TestEmbed_FallbackChain(t *testing.T) {
	provider := newFlakyProvider("primary")
	engine := newTestEngine(t, provider, Config{
		Model:          "primary",
		FallbackModels: []string{"backup"},
	})

	emb, err := engine.Embed(context.Background(), "some content", "")
	require.NoError(t, err)
	assert.True(t, emb.Fallback)
	assert.Equal(t, "backup", emb.Model)
	assert.Equal(t, 1, provider.calls["primary"])
	assert.Equal(t, 1, provider.calls["backup"])
	assert.Equal(t, int64(1), engine.Stats().Fallbacks)

	// The fallback result is cached under the primary key, so a repeat does
	// not retry the dead primary.
	again, err := engine.Embed(context.Background(), "some content", "")
	require.NoError(t, err)
	assert.True(t, again.CacheHit)
	assert.Equal(t, 1, provider.calls["primary"])
}

func TestEmbed_AllModelsFail(t *testing.T) {
	provider := newFlakyProvider("primary", "backup")
	engine := newTestEngine(t, provider, Config{
		Model:          "primary",
		FallbackModels: []string{"backup"},
	})

	_, err := engine.Embed(context.Background(), "content", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllModelsFailed)
}

func TestEmbedBatch_ValidatesInput(t *testing.T) {
	engine := newTestEngine(t, newFlakyProvider(), Config{})
	ctx := context.Background()

	_, err := engine.EmbedBatch(ctx, nil, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = engine.EmbedBatch(ctx, []string{"ok", "   "}, "")
	assert.ErrorIs(t, err, ErrEmptyText)

	big := make([]string, MaxBatchSize+1)
	for i := range big {
		big[i] = "text"
	}
	_, err = engine.EmbedBatch(ctx, big, "")
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestEmbed_QuantizationFlagged(t *testing.T) {
	engine := newTestEngine(t, newFlakyProvider(), Config{QuantizationBits: 8})

	emb, err := engine.Embed(context.Background(), "quantize me", "")
	require.NoError(t, err)
	assert.True(t, emb.Quantized)
	assert.Equal(t, emb.Dimension, len(emb.Vector))
}

func TestLocalProvider_Deterministic(t *testing.T) {
	provider := NewLocalProvider(64)
	ctx := context.Background()

	a, err := provider.Embed(ctx, []string{"hello"}, "m")
	require.NoError(t, err)
	b, err := provider.Embed(ctx, []string{"hello"}, "m")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a[0], 64)

	c, err := provider.Embed(ctx, []string{"other"}, "m")
	require.NoError(t, err)
	assert.NotEqual(t, a[0], c[0])
}

func TestComputeHash_ModelScoped(t *testing.T) {
	assert.NotEqual(t, ComputeHash("m1", "text"), ComputeHash("m2", "text"))
	assert.Equal(t, ComputeHash("m", "a  b"), ComputeHash("m", "a\nb"))
}
