package embedder

import "strings"

// Preprocessor normalizes code text before embedding. It strips line
// comments and docstrings so the embedding reflects the code itself, and
// optionally prefixes the language so one model can separate languages in
// embedding space. Apply never mutates its input.
type Preprocessor struct {
	// PrefixLanguage prepends "[LANG] " to the processed text.
	PrefixLanguage bool
}

// lineCommentMarkers maps a language to its line comment prefix.
var lineCommentMarkers = map[string]string{
	"go":         "//",
	"javascript": "//",
	"typescript": "//",
	"java":       "//",
	"c":          "//",
	"cpp":        "//",
	"rust":       "//",
	"python":     "#",
	"ruby":       "#",
	"shell":      "#",
}

// Apply returns the processed form of text for the given language. Unknown
// languages pass through with only the optional prefix.
func (p *Preprocessor) Apply(text, language string) string {
	lang := strings.ToLower(language)
	processed := text

	if marker, ok := lineCommentMarkers[lang]; ok {
		processed = stripLineComments(processed, marker)
	}
	if lang == "python" {
		processed = stripDocstrings(processed)
	}

	processed = strings.TrimSpace(processed)
	if p.PrefixLanguage && lang != "" {
		processed = "[" + strings.ToUpper(lang) + "] " + processed
	}
	return processed
}

// stripLineComments drops whole-line comments and trailing comment tails.
// String literals containing the marker survive only when the marker is not
// preceded by whitespace, which covers the common URL-in-string case
// ("https://...") without a full lexer.
func stripLineComments(text, marker string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, marker) {
			continue
		}
		if idx := strings.Index(line, " "+marker); idx >= 0 {
			line = strings.TrimRight(line[:idx], " \t")
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// stripDocstrings removes triple-quoted blocks.
func stripDocstrings(text string) string {
	for _, quote := range []string{`"""`, "'''"} {
		for {
			start := strings.Index(text, quote)
			if start < 0 {
				break
			}
			end := strings.Index(text[start+len(quote):], quote)
			if end < 0 {
				break
			}
			text = text[:start] + text[start+len(quote)+end+len(quote):]
		}
	}
	return text
}
