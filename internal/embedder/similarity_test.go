package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarity_Cosine(t *testing.T) {
	a := []float32{1, 0, 0}
	assert.InDelta(t, 1.0, Similarity(a, []float32{2, 0, 0}, MetricCosine), 1e-9)
	assert.InDelta(t, 0.0, Similarity(a, []float32{0, 1, 0}, MetricCosine), 1e-9)
	assert.InDelta(t, -1.0, Similarity(a, []float32{-1, 0, 0}, MetricCosine), 1e-9)
}

func TestSimilarity_DistanceMetricsIdentity(t *testing.T) {
	v := []float32{0.3, -0.2, 0.9}
	assert.InDelta(t, 1.0, Similarity(v, v, MetricEuclidean), 1e-9)
	assert.InDelta(t, 1.0, Similarity(v, v, MetricManhattan), 1e-9)

	far := Similarity(v, []float32{5, 5, 5}, MetricEuclidean)
	assert.Greater(t, 1.0, far)
	assert.Greater(t, far, 0.0)
}

func TestSimilarity_MismatchedLengths(t *testing.T) {
	assert.Equal(t, 0.0, Similarity([]float32{1}, []float32{1, 2}, MetricCosine))
	assert.Equal(t, 0.0, Similarity(nil, nil, MetricCosine))
}

func TestFindSimilar_RanksAndFilters(t *testing.T) {
	query := []float32{1, 0}
	candidates := [][]float32{
		{0, 1},    // orthogonal
		{1, 0.1},  // near
		{1, 0},    // exact
		{-1, 0},   // opposite
		{0.9, -0.1},
	}

	matches := FindSimilar(query, candidates, 3, 0.5, MetricCosine)
	assert.Len(t, matches, 3)
	assert.Equal(t, 2, matches[0].Index)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
		assert.GreaterOrEqual(t, matches[i].Score, 0.5)
	}
}

func TestFindSimilar_ZeroTopK(t *testing.T) {
	assert.Nil(t, FindSimilar([]float32{1}, [][]float32{{1}}, 0, 0, MetricCosine))
}

func TestPreprocessor_StripsCommentsAndDocstrings(t *testing.T) {
	p := &Preprocessor{}

	goSrc := "// Package doc.\nfunc Add(a, b int) int {\n\treturn a + b // sum\n}"
	out := p.Apply(goSrc, "go")
	assert.NotContains(t, out, "Package doc")
	assert.NotContains(t, out, "// sum")
	assert.Contains(t, out, "return a + b")

	pySrc := "def f(x):\n    \"\"\"Docstring here.\"\"\"\n    # comment\n    return x"
	out = p.Apply(pySrc, "python")
	assert.NotContains(t, out, "Docstring")
	assert.NotContains(t, out, "# comment")
	assert.Contains(t, out, "return x")
}

func TestPreprocessor_LanguagePrefix(t *testing.T) {
	p := &Preprocessor{PrefixLanguage: true}
	out := p.Apply("return x", "python")
	assert.Equal(t, "[PYTHON] return x", out)

	// Unknown language passes through untouched.
	out = p.Apply("SELECT 1", "sql")
	assert.Equal(t, "[SQL] SELECT 1", out)
}
