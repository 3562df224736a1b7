package chunker

import (
	"math"
	"strings"

	"github.com/lodestone-ai/lodestone/pkg/types"
)

// Structural signals and their weights. Each keyword found contributes its
// weight once; the structural contribution is capped.
var structuralSignals = map[string]float64{
	"class ":     0.3,
	"def ":       0.25,
	"func ":      0.25,
	"function ":  0.25,
	"interface ": 0.2,
	"struct ":    0.2,
	"@":          0.1,
}

const (
	structuralCap   = 0.5
	docSignalCap    = 0.2
	sizeFitBonus    = 0.1
	baseImportance  = 0.2
	minImportance   = 0.1
	maxImportance   = 1.0
	sweetSpotMinLen = 5
	sweetSpotMaxLen = 60
)

// designPatterns is the fixed catalogue of pattern names tagged when they
// occur in chunk text.
var designPatterns = []string{
	"singleton", "factory", "observer", "adapter", "decorator",
	"strategy", "builder", "proxy", "facade", "command",
}

// importanceScore computes a chunk's importance from structural signals,
// documentation density and a size-fit bonus, clamped to [0.1, 1.0].
func importanceScore(text string, tags []string) float64 {
	lower := strings.ToLower(text)
	score := baseImportance

	structural := 0.0
	for kw, w := range structuralSignals {
		if strings.Contains(lower, kw) {
			structural += w
		}
	}
	score += math.Min(structural, structuralCap)

	score += math.Min(docDensity(text)*0.5, docSignalCap)

	lines := strings.Count(text, "\n") + 1
	if lines >= sweetSpotMinLen && lines <= sweetSpotMaxLen {
		score += sizeFitBonus
	}

	// Tagged chunks carry slightly more retrieval value.
	if len(tags) > 2 {
		score += 0.05
	}

	return math.Max(minImportance, math.Min(maxImportance, score))
}

// docDensity is the fraction of lines that look like documentation.
func docDensity(text string) float64 {
	lines := strings.Split(text, "\n")
	if len(lines) == 0 {
		return 0
	}
	doc := 0
	for _, line := range lines {
		t := strings.TrimSpace(line)
		if strings.HasPrefix(t, "//") || strings.HasPrefix(t, "#") ||
			strings.HasPrefix(t, "/*") || strings.HasPrefix(t, "*") ||
			strings.HasPrefix(t, `"""`) || strings.HasPrefix(t, "'''") {
			doc++
		}
	}
	return float64(doc) / float64(len(lines))
}

// extractSemanticTags identifies structural and domain features present in
// the chunk text.
func extractSemanticTags(text, language string) []string {
	lower := strings.ToLower(text)
	var tags []string

	add := func(tag string, present bool) {
		if present {
			tags = append(tags, tag)
		}
	}

	add("class_definition", strings.Contains(lower, "class "))
	add("function_definition", strings.Contains(lower, "def ") ||
		strings.Contains(lower, "func ") || strings.Contains(lower, "function "))
	add("imports", strings.Contains(lower, "import ") ||
		strings.Contains(lower, "#include") || strings.Contains(lower, "require("))
	add("documentation", docDensity(text) > 0.1)
	add("tests", strings.Contains(lower, "test_") || strings.Contains(lower, "func test") ||
		strings.Contains(lower, "assert") || strings.Contains(lower, "it("))
	add("async", strings.Contains(lower, "async ") || strings.Contains(lower, "await ") ||
		strings.Contains(lower, "go func"))
	add("error_handling", strings.Contains(lower, "try:") || strings.Contains(lower, "except") ||
		strings.Contains(lower, "catch") || strings.Contains(lower, "if err != nil") ||
		strings.Contains(lower, "raise "))

	for _, pattern := range designPatterns {
		if strings.Contains(lower, pattern) {
			tags = append(tags, "pattern_"+pattern)
		}
	}

	return tags
}

// qualityScore is the unweighted mean of four components: size consistency,
// content coverage, mean importance and semantic tag density.
func qualityScore(result *types.ChunkingResult) float64 {
	chunks := result.Chunks
	if len(chunks) == 0 {
		return 0
	}

	// 1. Size consistency: 1 - normalized stdev of chunk sizes.
	mean := 0.0
	for i := range chunks {
		mean += float64(len(chunks[i].Text))
	}
	mean /= float64(len(chunks))

	variance := 0.0
	for i := range chunks {
		d := float64(len(chunks[i].Text)) - mean
		variance += d * d
	}
	variance /= float64(len(chunks))
	sizeConsistency := 1.0
	if mean > 0 {
		sizeConsistency = math.Max(0, 1.0-math.Sqrt(variance)/mean)
	}

	// 2. Content coverage: chars covered / total chars, capped at 1 since
	// overlapping windows can cover text more than once.
	coverage := 1.0
	if result.Metrics.TotalChars > 0 {
		coverage = math.Min(1.0, float64(result.Metrics.CharsCovered)/float64(result.Metrics.TotalChars))
	}

	// 3. Mean importance.
	importance := 0.0
	for i := range chunks {
		importance += chunks[i].ImportanceScore
	}
	importance /= float64(len(chunks))

	// 4. Semantic tag density, saturating at 3 tags per chunk.
	tagged := 0.0
	for i := range chunks {
		tagged += math.Min(1.0, float64(len(chunks[i].SemanticTags))/3.0)
	}
	tagDensity := tagged / float64(len(chunks))

	return (sizeConsistency + coverage + importance + tagDensity) / 4.0
}

// termFrequency builds a lowercase word frequency vector.
func termFrequency(text string) map[string]float64 {
	tf := make(map[string]float64)
	for _, w := range splitWords(strings.ToLower(text)) {
		tf[w.text]++
	}
	return tf
}

// mergeTF accumulates src into dst.
func mergeTF(dst, src map[string]float64) {
	for k, v := range src {
		dst[k] += v
	}
}

// cosineTF computes cosine similarity between two term frequency vectors.
func cosineTF(a, b map[string]float64) float64 {
	var dot, normA, normB float64
	for k, va := range a {
		normA += va * va
		if vb, ok := b[k]; ok {
			dot += va * vb
		}
	}
	for _, vb := range b {
		normB += vb * vb
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
