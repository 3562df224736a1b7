package chunker

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lodestone-ai/lodestone/internal/log"
	"github.com/lodestone-ai/lodestone/pkg/types"
)

const (
	// FallbackQualityScore is assigned to results produced by the fixed-token
	// fallback after a strategy failure.
	FallbackQualityScore = 0.3

	// DefaultChunkSize is the token window used when the caller passes zero.
	DefaultChunkSize = 512

	// DefaultMaxChunksPerFile bounds hierarchy linking, which is quadratic in
	// chunks per level pair.
	DefaultMaxChunksPerFile = 500

	// semanticBoundaryThreshold is the similarity below which adjacent
	// sentences start a new semantic chunk.
	semanticBoundaryThreshold = 0.25
)

var (
	// ErrEmptyText is returned when there is nothing to chunk.
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrUnknownStrategy is returned for an unrecognized strategy name.
	ErrUnknownStrategy = errors.New("unknown chunking strategy")
)

// Strategy selects the chunking algorithm. The set is closed: adding a
// strategy means adding a variant here and a case in chunkWith.
type Strategy int

const (
	StrategyFixed Strategy = iota
	StrategySentence
	StrategySemantic
	StrategyHierarchical
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case StrategyFixed:
		return "fixed"
	case StrategySentence:
		return "sentence"
	case StrategySemantic:
		return "semantic"
	case StrategyHierarchical:
		return "hierarchical"
	default:
		return "unknown"
	}
}

// ChunkType maps the strategy to the chunk type it produces.
func (s Strategy) ChunkType() types.ChunkType {
	switch s {
	case StrategySentence:
		return types.ChunkSentence
	case StrategySemantic:
		return types.ChunkSemantic
	case StrategyHierarchical:
		return types.ChunkHierarchical
	default:
		return types.ChunkFixed
	}
}

// ParseStrategy resolves a strategy by name.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(name) {
	case "fixed":
		return StrategyFixed, nil
	case "sentence":
		return StrategySentence, nil
	case "semantic":
		return StrategySemantic, nil
	case "hierarchical":
		return StrategyHierarchical, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
}

// Options tunes a Chunker.
type Options struct {
	HierarchyLevels        []int
	HierarchyLinkThreshold float64
	MaxChunksPerFile       int
}

// Chunker splits raw file text into scored, tagged chunks.
type Chunker struct {
	counter TokenCounter
	opts    Options
	logger  log.Logger
}

// New creates a Chunker. A nil counter uses the BPE counter with the chars/4
// fallback; zero option fields use package defaults.
func New(counter TokenCounter, opts Options, logger log.Logger) *Chunker {
	if counter == nil {
		counter = NewBPECounter()
	}
	if logger == nil {
		logger = log.NewNop()
	}
	if len(opts.HierarchyLevels) == 0 {
		opts.HierarchyLevels = []int{512, 1024, 2048}
	}
	if opts.HierarchyLinkThreshold == 0 {
		opts.HierarchyLinkThreshold = 0.3
	}
	if opts.MaxChunksPerFile == 0 {
		opts.MaxChunksPerFile = DefaultMaxChunksPerFile
	}
	return &Chunker{counter: counter, opts: opts, logger: logger}
}

// Chunk splits file text using the requested strategy. It never fails past
// this boundary: a strategy error degrades to fixed-token chunking with
// QualityScore fixed at FallbackQualityScore and Fallback set. Size is the
// token window, overlap the number of window tokens shared between adjacent
// chunks.
func (c *Chunker) Chunk(file types.SourceFile, strategy Strategy, size, overlap int) *types.ChunkingResult {
	start := time.Now()
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 10
	}

	chunks, err := c.chunkWith(file, strategy, size, overlap)
	fallback := false
	if err != nil {
		c.logger.Warn("chunking strategy failed, using fixed fallback",
			"file", file.RelativePath, "strategy", strategy.String(), "error", err)
		chunks, err = c.chunkFixed(file, size, overlap, 0)
		fallback = true
		if err != nil {
			// Even the fallback found nothing usable (e.g. empty file).
			chunks = nil
		}
	}

	result := &types.ChunkingResult{
		Chunks:   chunks,
		Strategy: strategy.ChunkType(),
		Metadata: map[string]string{
			"strategy": strategy.String(),
			"size":     fmt.Sprintf("%d", size),
			"overlap":  fmt.Sprintf("%d", overlap),
		},
		Fallback: fallback,
	}

	covered := 0
	for i := range result.Chunks {
		covered += len(result.Chunks[i].Text)
	}
	result.Metrics = types.ChunkingMetrics{
		Duration:      time.Since(start),
		ChunksCreated: len(result.Chunks),
		CharsCovered:  covered,
		TotalChars:    len(file.RawText),
	}

	if fallback {
		result.QualityScore = FallbackQualityScore
	} else {
		result.QualityScore = qualityScore(result)
	}

	return result
}

// chunkWith dispatches to the strategy variant. Each variant is a pure
// function of (file, size, overlap).
func (c *Chunker) chunkWith(file types.SourceFile, strategy Strategy, size, overlap int) ([]types.Chunk, error) {
	switch strategy {
	case StrategyFixed:
		return c.chunkFixed(file, size, overlap, 0)
	case StrategySentence:
		return c.chunkSentence(file, size, overlap)
	case StrategySemantic:
		return c.chunkSemantic(file, size)
	case StrategyHierarchical:
		return c.chunkHierarchical(file)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownStrategy, int(strategy))
	}
}

// chunkFixed produces overlapping fixed-size word windows. Level tags the
// hierarchy level for chunks produced inside the hierarchical composite.
func (c *Chunker) chunkFixed(file types.SourceFile, size, overlap, level int) ([]types.Chunk, error) {
	words := splitWords(file.RawText)
	if len(words) == 0 {
		return nil, ErrEmptyText
	}

	step := size - overlap
	if step <= 0 {
		step = size
	}

	chunks := make([]types.Chunk, 0, len(words)/step+1)
	for start := 0; start < len(words); start += step {
		end := start + size
		if end > len(words) {
			end = len(words)
		}

		window := words[start:end]
		text := joinWords(window)

		chunk := c.buildChunk(file, text, types.ChunkFixed, window[0].line, window[len(window)-1].line, level)
		chunks = append(chunks, chunk)

		if end == len(words) {
			break
		}
		if len(chunks) >= c.opts.MaxChunksPerFile {
			break
		}
	}

	return chunks, nil
}

// chunkSentence groups whole sentences into chunks of roughly size tokens,
// carrying overlap sentences into the next chunk.
func (c *Chunker) chunkSentence(file types.SourceFile, size, overlap int) ([]types.Chunk, error) {
	sentences := splitSentences(file.RawText)
	if len(sentences) == 0 {
		return nil, ErrEmptyText
	}

	// Overlap is expressed in tokens for fixed windows; for sentence grouping
	// it degrades to a count of carried-over sentences.
	carry := 1
	if overlap == 0 {
		carry = 0
	}

	var chunks []types.Chunk
	i := 0
	for i < len(sentences) && len(chunks) < c.opts.MaxChunksPerFile {
		tokens := 0
		j := i
		for j < len(sentences) {
			t := c.counter.Count(sentences[j].text)
			if tokens > 0 && tokens+t > size {
				break
			}
			tokens += t
			j++
		}

		group := sentences[i:j]
		texts := make([]string, len(group))
		for k, s := range group {
			texts[k] = s.text
		}
		chunk := c.buildChunk(file, strings.Join(texts, "\n"), types.ChunkSentence,
			group[0].startLine, group[len(group)-1].endLine, 0)
		chunks = append(chunks, chunk)

		if j >= len(sentences) {
			break
		}
		next := j - carry
		if next <= i {
			next = i + 1
		}
		i = next
	}

	return chunks, nil
}

// chunkSemantic starts a new chunk when the lexical similarity between the
// running chunk and the next sentence drops below the boundary threshold, or
// when the token budget for one chunk is exhausted.
func (c *Chunker) chunkSemantic(file types.SourceFile, size int) ([]types.Chunk, error) {
	sentences := splitSentences(file.RawText)
	if len(sentences) == 0 {
		return nil, ErrEmptyText
	}

	var chunks []types.Chunk
	groupStart := 0
	groupTokens := c.counter.Count(sentences[0].text)
	groupVec := termFrequency(sentences[0].text)

	flush := func(endIdx int) {
		group := sentences[groupStart : endIdx+1]
		texts := make([]string, len(group))
		for k, s := range group {
			texts[k] = s.text
		}
		chunk := c.buildChunk(file, strings.Join(texts, "\n"), types.ChunkSemantic,
			group[0].startLine, group[len(group)-1].endLine, 0)
		chunks = append(chunks, chunk)
	}

	for i := 1; i < len(sentences); i++ {
		if len(chunks) >= c.opts.MaxChunksPerFile {
			return chunks, nil
		}
		next := termFrequency(sentences[i].text)
		t := c.counter.Count(sentences[i].text)

		if cosineTF(groupVec, next) < semanticBoundaryThreshold || groupTokens+t > size {
			flush(i - 1)
			groupStart = i
			groupTokens = t
			groupVec = next
			continue
		}
		groupTokens += t
		mergeTF(groupVec, next)
	}
	flush(len(sentences) - 1)

	return chunks, nil
}

// buildChunk assembles a chunk with its score, tags, hash and id.
func (c *Chunker) buildChunk(file types.SourceFile, text string, ct types.ChunkType, startLine, endLine, level int) types.Chunk {
	chunk := types.Chunk{
		Text:         text,
		ChunkType:    ct,
		Language:     file.Language,
		FilePath:     file.RelativePath,
		StartLine:    startLine,
		EndLine:      endLine,
		ContextLevel: level,
		ParentIndex:  types.NoParent,
		TokenCount:   c.counter.Count(text),
	}
	chunk.SemanticTags = extractSemanticTags(text, file.Language)
	chunk.ImportanceScore = importanceScore(text, chunk.SemanticTags)
	chunk.ComputeContentHash()
	chunk.ComputeID()
	return chunk
}
