package chunker

import (
	"strings"
	"sync"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// TokensPerChar is the heuristic used when no encoder is available (chars/4).
	TokensPerChar = 4

	// encodingName selects the BPE encoding for token counting.
	encodingName = "cl100k_base"
)

// TokenCounter estimates token counts for budget accounting.
type TokenCounter interface {
	Count(text string) int
}

// BPECounter counts tokens with a tiktoken encoder, falling back to the
// chars/4 heuristic when the encoding cannot be loaded (e.g. offline).
type BPECounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewBPECounter creates a lazily-initialized token counter.
func NewBPECounter() *BPECounter {
	return &BPECounter{}
}

// Count returns the token count for text.
func (c *BPECounter) Count(text string) int {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding(encodingName)
		if err == nil {
			c.enc = enc
		}
	})

	if c.enc == nil {
		return EstimateTokenCount(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// EstimateTokenCount estimates tokens using the chars/4 heuristic.
func EstimateTokenCount(text string) int {
	return len(text) / TokensPerChar
}

// word is a whitespace-delimited token with its 1-based source line.
type word struct {
	text string
	line int
}

// splitWords tokenizes text into whitespace-delimited words, tracking the
// line each word starts on. Windowing strategies operate on this slice so
// chunk boundaries are deterministic regardless of the BPE encoder.
func splitWords(text string) []word {
	words := make([]word, 0, len(text)/5)
	line := 1
	start := -1
	startLine := 1

	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				words = append(words, word{text: text[start:i], line: startLine})
				start = -1
			}
			if r == '\n' {
				line++
			}
			continue
		}
		if start < 0 {
			start = i
			startLine = line
		}
	}
	if start >= 0 {
		words = append(words, word{text: text[start:], line: startLine})
	}

	return words
}

// joinWords reassembles a word window, restoring line breaks so that
// documentation and size signals survive windowing.
func joinWords(window []word) string {
	var sb strings.Builder
	for i, w := range window {
		if i > 0 {
			if w.line > window[i-1].line {
				sb.WriteByte('\n')
			} else {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(w.text)
	}
	return sb.String()
}

// sentence is a text span covering whole source lines.
type sentence struct {
	text      string
	startLine int
	endLine   int
}

// splitSentences splits text on sentence-ending punctuation and blank lines.
// Code-heavy text rarely has clean sentence structure, so blank lines also
// count as boundaries.
func splitSentences(text string) []sentence {
	var sentences []sentence
	var sb strings.Builder
	line := 1
	startLine := 1

	flush := func(endLine int) {
		s := strings.TrimSpace(sb.String())
		if s != "" {
			sentences = append(sentences, sentence{text: s, startLine: startLine, endLine: endLine})
		}
		sb.Reset()
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if sb.Len() == 0 {
			if r == '\n' {
				line++
				continue
			}
			if unicode.IsSpace(r) {
				continue
			}
			startLine = line
		}
		sb.WriteRune(r)
		switch r {
		case '.', '!', '?':
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				flush(line)
			}
		case '\n':
			line++
			if i+1 < len(runes) && runes[i+1] == '\n' {
				flush(line - 1)
			}
		}
	}
	flush(line)

	return sentences
}
