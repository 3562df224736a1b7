package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Valid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().ChunkSize, cfg.ChunkSize)
	assert.Equal(t, Default().EmbeddingModel, cfg.EmbeddingModel)
}

func TestLoad_FileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lodestone.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"chunk_size: 256\nworkers: 2\nresults_cache_ttl: 30s\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.ChunkSize)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 30*time.Second, cfg.ResultsCacheTTL)
	// Untouched keys keep defaults.
	assert.Equal(t, Default().HybridAlpha, cfg.HybridAlpha)
}

func TestLoad_ExplicitMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"zero chunk size", func(c *Config) { c.ChunkSize = 0 }, ErrInvalidChunkSize},
		{"overlap one", func(c *Config) { c.OverlapRatio = 1 }, ErrInvalidOverlap},
		{"no workers", func(c *Config) { c.Workers = 0 }, ErrInvalidWorkers},
		{"zero cache", func(c *Config) { c.EmbeddingCacheLen = 0 }, ErrInvalidCacheSize},
		{"no model", func(c *Config) { c.EmbeddingModel = "" }, ErrMissingModel},
		{"tier overflow", func(c *Config) { c.TierHighPct = 0.9; c.TierMediumPct = 0.3 }, ErrInvalidTierSplit},
		{"alpha range", func(c *Config) { c.HybridAlpha = 1.5 }, ErrInvalidThreshold},
		{"bad bits", func(c *Config) { c.QuantizationBits = 32 }, ErrInvalidThreshold},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tc.want)
		})
	}
}
