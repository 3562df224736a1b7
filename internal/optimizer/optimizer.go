package optimizer

import (
	"errors"
	"sort"
	"strings"

	"github.com/lodestone-ai/lodestone/internal/log"
	"github.com/lodestone-ai/lodestone/pkg/types"
)

// ErrBudgetTooSmall reports a token budget fully consumed by the reserve.
var ErrBudgetTooSmall = errors.New("token budget too small for any content")

// Reserve and tiering defaults.
const (
	// reservedQueryFactor and reservedBudgetShare size the reserve held
	// back for the query itself and expected response overhead.
	reservedQueryFactor = 1.3
	reservedBudgetShare = 0.35

	DefaultHighThreshold   = 0.8
	DefaultMediumThreshold = 0.5
	DefaultHighShare       = 0.6
	DefaultMediumShare     = 0.3
	DefaultLowShare        = 0.1

	// lengthFitBonus rewards chunks in the size range that tends to carry
	// one coherent idea.
	lengthFitBonus = 0.1
	lengthFitMin   = 100
	lengthFitMax   = 800
)

// Signal weights and caps.
const (
	exactMatchWeight   = 0.40
	partialMatchWeight = 0.20
	structureWeight    = 0.25
	docWeight          = 0.15
	importantWeight    = 0.10
)

// Options tunes tier thresholds and budget shares. Zero values take the
// defaults above.
type Options struct {
	HighThreshold   float64
	MediumThreshold float64
	HighShare       float64
	MediumShare     float64
	LowShare        float64
}

func (o *Options) applyDefaults() {
	if o.HighThreshold <= 0 {
		o.HighThreshold = DefaultHighThreshold
	}
	if o.MediumThreshold <= 0 {
		o.MediumThreshold = DefaultMediumThreshold
	}
	if o.HighShare <= 0 {
		o.HighShare = DefaultHighShare
	}
	if o.MediumShare <= 0 {
		o.MediumShare = DefaultMediumShare
	}
	if o.LowShare <= 0 {
		o.LowShare = DefaultLowShare
	}
}

// Recorder receives selection metrics. *perf.Tracker satisfies it.
type Recorder interface {
	SetGauge(name string, value float64)
}

// Optimizer assembles a token-bounded context from candidate chunks.
type Optimizer struct {
	opts   Options
	rec    Recorder
	logger log.Logger
}

// New creates an Optimizer. rec is optional; when set, each selection
// reports its budget utilization as a gauge.
func New(opts Options, rec Recorder, logger log.Logger) *Optimizer {
	opts.applyDefaults()
	if logger == nil {
		logger = log.NewNop()
	}
	return &Optimizer{opts: opts, rec: rec, logger: logger}
}

// Select scores candidates against query, tiers them by score and greedily
// fills each tier's share of the usable budget, best first, never splitting
// a chunk. TokensUsed counts the reserve plus every selected chunk and
// never exceeds tokenBudget.
func (o *Optimizer) Select(chunks []types.Chunk, query string, tokenBudget int) (*types.ContextSelection, error) {
	reserved := o.reserve(query, tokenBudget)
	usable := tokenBudget - reserved
	if usable <= 0 {
		return nil, ErrBudgetTooSmall
	}

	scored := make([]types.ScoredChunk, len(chunks))
	for i, c := range chunks {
		scored[i] = types.ScoredChunk{Chunk: c, Score: o.Score(c, query)}
	}

	selection := o.selectScored(scored, usable)
	selection.TokensUsed += reserved
	selection.TokensAvailable = tokenBudget

	if tokenBudget > 0 {
		selection.Utilization = float64(selection.TokensUsed) / float64(tokenBudget)
	}
	if len(chunks) > 0 {
		selection.Fragmentation = 1 - float64(len(selection.SelectedChunks))/float64(len(chunks))
	}
	var originalTokens int
	for _, c := range chunks {
		originalTokens += chunkTokens(c)
	}
	if originalTokens > 0 {
		selection.Compression = 1 - float64(selection.TokensUsed-reserved)/float64(originalTokens)
	}

	if o.rec != nil {
		o.rec.SetGauge("context.budget_utilization", selection.Utilization)
	}

	o.logger.Debug("context selected",
		"candidates", len(chunks),
		"selected", len(selection.SelectedChunks),
		"tokens_used", selection.TokensUsed,
		"budget", tokenBudget)
	return selection, nil
}

// reserve holds back tokens for the query itself and response overhead.
func (o *Optimizer) reserve(query string, tokenBudget int) int {
	queryWords := len(strings.Fields(query))
	return int(reservedQueryFactor*float64(queryWords) + reservedBudgetShare*float64(tokenBudget))
}

// selectScored fills tiers greedily. A chunk that would push its tier past
// its sub-budget is skipped, not truncated.
func (o *Optimizer) selectScored(scored []types.ScoredChunk, usable int) *types.ContextSelection {
	var high, medium, low []types.ScoredChunk
	for _, sc := range scored {
		switch {
		case sc.Score >= o.opts.HighThreshold:
			high = append(high, sc)
		case sc.Score >= o.opts.MediumThreshold:
			medium = append(medium, sc)
		default:
			low = append(low, sc)
		}
	}

	selection := &types.ContextSelection{}
	selection.TokensUsed += fillTier(selection, high, int(o.opts.HighShare*float64(usable)))
	selection.TokensUsed += fillTier(selection, medium, int(o.opts.MediumShare*float64(usable)))
	selection.TokensUsed += fillTier(selection, low, int(o.opts.LowShare*float64(usable)))
	return selection
}

// fillTier appends tier chunks best-first until one would exceed the
// sub-budget, and returns the tokens consumed.
func fillTier(selection *types.ContextSelection, tier []types.ScoredChunk, subBudget int) int {
	sort.SliceStable(tier, func(i, j int) bool {
		return tier[i].Score > tier[j].Score
	})

	var used int
	for _, sc := range tier {
		tokens := chunkTokens(sc.Chunk)
		if used+tokens > subBudget {
			break
		}
		selection.SelectedChunks = append(selection.SelectedChunks, sc)
		used += tokens
	}
	return used
}

func chunkTokens(c types.Chunk) int {
	if c.TokenCount > 0 {
		return c.TokenCount
	}
	return len(c.Text) / 4
}

// codeStructureTerms signal that a chunk defines structure rather than
// prose.
var codeStructureTerms = []string{
	"func ", "def ", "class ", "struct ", "interface ", "function ",
	"import ", "return ", "type ",
}

// docMarkers signal explanatory content.
var docMarkers = []string{"//", "#", "/*", "*", `"""`, "'''", "@param", "@return"}

// importantTerms carry outsized retrieval value for debugging queries.
var importantTerms = []string{
	"error", "err", "panic", "exception", "security", "auth",
	"config", "password", "token", "secret",
}

// Score rates a chunk's relevance to query in [0, 1] using five weighted
// signals plus a length-fit bonus.
func (o *Optimizer) Score(chunk types.Chunk, query string) float64 {
	text := strings.ToLower(chunk.Text)
	words := strings.Fields(text)
	keywords := queryKeywords(query)

	score := exactMatchWeight*exactMatchRatio(words, keywords) +
		partialMatchWeight*partialMatchRatio(text, keywords) +
		structureWeight*cappedDensity(text, words, codeStructureTerms) +
		docWeight*cappedDensity(text, words, docMarkers) +
		importantWeight*cappedDensity(text, words, importantTerms)

	if len(chunk.Text) >= lengthFitMin && len(chunk.Text) <= lengthFitMax {
		score += lengthFitBonus
	}

	return min(max(score, 0), 1)
}

func queryKeywords(query string) []string {
	var keywords []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) > 2 {
			keywords = append(keywords, w)
		}
	}
	return keywords
}

// exactMatchRatio is the fraction of query keywords appearing as whole
// words in the chunk.
func exactMatchRatio(words, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	wordSet := make(map[string]bool, len(words))
	for _, w := range words {
		wordSet[strings.Trim(w, ".,():;{}[]\"'`")] = true
	}
	var hits int
	for _, k := range keywords {
		if wordSet[k] {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}

// partialMatchRatio is the fraction of query keywords appearing anywhere
// in the chunk text as substrings.
func partialMatchRatio(text string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	var hits int
	for _, k := range keywords {
		if strings.Contains(text, k) {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}

// cappedDensity measures term occurrences per word, saturating at 1 when
// every tenth word is a hit.
func cappedDensity(text string, words []string, terms []string) float64 {
	if len(words) == 0 {
		return 0
	}
	var hits int
	for _, term := range terms {
		hits += strings.Count(text, term)
	}
	return min(float64(hits)/float64(len(words))*10, 1)
}
