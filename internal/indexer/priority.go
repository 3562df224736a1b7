package indexer

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/lodestone-ai/lodestone/pkg/types"
)

// entryPointNames are processed before everything else; indexing the entry
// points first makes partial runs useful sooner.
var entryPointNames = map[string]bool{
	"main.go":     true,
	"main.py":     true,
	"__main__.py": true,
	"app.py":      true,
	"index.js":    true,
	"index.ts":    true,
	"main.rs":     true,
	"main.java":   true,
}

// languagePriority orders languages; lower is earlier. Unknown languages
// sort last.
var languagePriority = map[string]int{
	"go":         1,
	"python":     2,
	"typescript": 3,
	"javascript": 4,
	"java":       5,
	"rust":       6,
	"c":          7,
	"cpp":        8,
}

const unknownLanguagePriority = 100

// prioritize sorts files deterministically: entry points first, then by
// language priority, then smaller files first, with path as the final
// tiebreak.
func prioritize(files []types.SourceFile) []types.SourceFile {
	sorted := append([]types.SourceFile(nil), files...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]

		aEntry := entryPointNames[strings.ToLower(filepath.Base(a.RelativePath))]
		bEntry := entryPointNames[strings.ToLower(filepath.Base(b.RelativePath))]
		if aEntry != bEntry {
			return aEntry
		}

		aLang, bLang := langPriority(a.Language), langPriority(b.Language)
		if aLang != bLang {
			return aLang < bLang
		}

		if a.SizeBytes != b.SizeBytes {
			return a.SizeBytes < b.SizeBytes
		}
		return a.RelativePath < b.RelativePath
	})
	return sorted
}

func langPriority(language string) int {
	if p, ok := languagePriority[language]; ok {
		return p
	}
	return unknownLanguagePriority
}
