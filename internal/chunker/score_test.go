package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lodestone-ai/lodestone/pkg/types"
)

func TestImportanceScore_Clamped(t *testing.T) {
	// Dense structural text saturates the caps but never exceeds 1.0.
	dense := "class Repo:\n    @cached\n    def get(self):\n        \"\"\"Doc.\"\"\"\n        try:\n            pass\n        except KeyError:\n            raise\n"
	tags := extractSemanticTags(dense, "python")
	score := importanceScore(dense, tags)
	assert.GreaterOrEqual(t, score, 0.1)
	assert.LessOrEqual(t, score, 1.0)

	// Plain prose floors at the minimum.
	plain := "x"
	assert.GreaterOrEqual(t, importanceScore(plain, nil), 0.1)
}

func TestImportanceScore_StructureBeatsProse(t *testing.T) {
	code := "def transform(rows):\n    \"\"\"Normalize rows.\"\"\"\n    return [r for r in rows]\n# one\n# two\n"
	prose := "some plain sentence\nwith nothing special\nabout it at all\nreally nothing\nnothing here\n"

	codeScore := importanceScore(code, extractSemanticTags(code, "python"))
	proseScore := importanceScore(prose, extractSemanticTags(prose, "text"))
	assert.Greater(t, codeScore, proseScore)
}

func TestExtractSemanticTags(t *testing.T) {
	text := "import asyncio\n\nasync def fetch():\n    try:\n        await client.get()\n    except TimeoutError:\n        raise\n"
	tags := extractSemanticTags(text, "python")

	assert.Contains(t, tags, "function_definition")
	assert.Contains(t, tags, "imports")
	assert.Contains(t, tags, "async")
	assert.Contains(t, tags, "error_handling")
	assert.NotContains(t, tags, "class_definition")
}

func TestExtractSemanticTags_DesignPatterns(t *testing.T) {
	tags := extractSemanticTags("type ConnFactory struct{} // builder for pools", "go")
	assert.Contains(t, tags, "pattern_factory")
	assert.Contains(t, tags, "pattern_builder")
}

func TestQualityScore_UniformChunksScoreHigher(t *testing.T) {
	uniform := &types.ChunkingResult{
		Chunks: []types.Chunk{
			{Text: "aaaaaaaaaa", ImportanceScore: 0.5},
			{Text: "bbbbbbbbbb", ImportanceScore: 0.5},
		},
		Metrics: types.ChunkingMetrics{CharsCovered: 20, TotalChars: 20},
	}
	skewed := &types.ChunkingResult{
		Chunks: []types.Chunk{
			{Text: "a", ImportanceScore: 0.5},
			{Text: "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", ImportanceScore: 0.5},
		},
		Metrics: types.ChunkingMetrics{CharsCovered: 31, TotalChars: 31},
	}

	assert.Greater(t, qualityScore(uniform), qualityScore(skewed))
}

func TestQualityScore_EmptyResult(t *testing.T) {
	assert.Equal(t, 0.0, qualityScore(&types.ChunkingResult{}))
}

func TestCosineTF(t *testing.T) {
	a := termFrequency("the cache evicts old entries")
	b := termFrequency("the cache evicts stale entries")
	c := termFrequency("penguins huddle in winter")

	assert.Greater(t, cosineTF(a, b), cosineTF(a, c))
	assert.InDelta(t, 1.0, cosineTF(a, a), 1e-9)
	assert.Equal(t, 0.0, cosineTF(a, map[string]float64{}))
}
