package vectorstore

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lodestone-ai/lodestone/pkg/types"
)

// DefaultResultsCacheLen bounds the number of cached result lists.
const DefaultResultsCacheLen = 256

type cachedResults struct {
	results   []types.ScoredChunk
	expiresAt time.Time
}

// resultsCache caches ranked search results by query fingerprint with a
// TTL. Entries expire lazily on read; there is no mutation-driven
// invalidation, stale results are bounded by the TTL.
type resultsCache struct {
	entries *lru.Cache[string, cachedResults]
	ttl     time.Duration
}

func newResultsCache(maxLen int, ttl time.Duration) *resultsCache {
	if maxLen <= 0 {
		maxLen = DefaultResultsCacheLen
	}
	entries, err := lru.New[string, cachedResults](maxLen)
	if err != nil {
		panic(fmt.Sprintf("results cache: %v", err))
	}
	return &resultsCache{entries: entries, ttl: ttl}
}

// key fingerprints a query: both the text and the query vector feed the
// hash, so equal text with a different vector misses. Filter slices are
// sorted so logically equal queries share an entry regardless of argument
// order. kind separates pure-vector from hybrid entries.
func (c *resultsCache) key(kind, text string, vector []float32, filter Filter, limit int, alpha, threshold float64) string {
	langs := append([]string(nil), filter.Languages...)
	paths := append([]string(nil), filter.PathPrefixes...)
	sort.Strings(langs)
	sort.Strings(paths)

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%d|%.4f|%.4f|",
		kind, text, strings.Join(langs, ","), strings.Join(paths, ","), limit, alpha, threshold)
	var word [4]byte
	for _, v := range vector {
		binary.LittleEndian.PutUint32(word[:], math.Float32bits(v))
		h.Write(word[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *resultsCache) get(key string) ([]types.ScoredChunk, bool) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.entries.Remove(key)
		return nil, false
	}
	return copyResults(entry.results), true
}

func (c *resultsCache) set(key string, results []types.ScoredChunk) {
	c.entries.Add(key, cachedResults{
		results:   copyResults(results),
		expiresAt: time.Now().Add(c.ttl),
	})
}

func (c *resultsCache) purge() {
	c.entries.Purge()
}

// copyResults deep-copies so callers cannot mutate cached state.
func copyResults(results []types.ScoredChunk) []types.ScoredChunk {
	out := make([]types.ScoredChunk, len(results))
	for i, r := range results {
		out[i] = r
		out[i].Chunk.SemanticTags = append([]string(nil), r.Chunk.SemanticTags...)
		out[i].Chunk.ChildIndexes = append([]int(nil), r.Chunk.ChildIndexes...)
	}
	return out
}
