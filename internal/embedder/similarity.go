package embedder

import (
	"math"
	"sort"
)

// Metric selects a vector similarity measure.
type Metric int

const (
	// MetricCosine is cosine similarity in [-1, 1].
	MetricCosine Metric = iota
	// MetricEuclidean is 1/(1+d) over Euclidean distance, in (0, 1].
	MetricEuclidean
	// MetricManhattan is 1/(1+d) over Manhattan distance, in (0, 1].
	MetricManhattan
)

// Similarity computes the similarity between two equal-length vectors.
// Mismatched or empty vectors score zero.
func Similarity(a, b []float32, metric Metric) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	switch metric {
	case MetricEuclidean:
		var sum float64
		for i := range a {
			d := float64(a[i] - b[i])
			sum += d * d
		}
		return 1 / (1 + math.Sqrt(sum))
	case MetricManhattan:
		var sum float64
		for i := range a {
			sum += math.Abs(float64(a[i] - b[i]))
		}
		return 1 / (1 + sum)
	default:
		return cosine(a, b)
	}
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Match pairs a candidate index with its similarity score.
type Match struct {
	Index int
	Score float64
}

// FindSimilar ranks candidates against query and returns up to topK matches
// with score >= threshold, best first. Ties break on the lower index so
// results are deterministic.
func FindSimilar(query []float32, candidates [][]float32, topK int, threshold float64, metric Metric) []Match {
	if topK <= 0 {
		return nil
	}
	matches := make([]Match, 0, len(candidates))
	for i, c := range candidates {
		score := Similarity(query, c, metric)
		if score >= threshold {
			matches = append(matches, Match{Index: i, Score: score})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Index < matches[j].Index
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}
