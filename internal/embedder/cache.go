package embedder

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheLen is the embedding cache capacity when none is configured.
const DefaultCacheLen = 10000

// Cache is an in-memory LRU cache of embeddings keyed by content hash. A
// cache hit bypasses the provider call entirely. Lookups never fail: any
// internal problem is reported as a miss.
type Cache struct {
	cache *lru.Cache[string, *Embedding]
}

// NewCache creates an embedding cache with LRU eviction.
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = DefaultCacheLen
	}
	cache, err := lru.New[string, *Embedding](maxLen)
	if err != nil {
		// Only reachable with a non-positive size, which is guarded above.
		cache, _ = lru.New[string, *Embedding](DefaultCacheLen)
	}
	return &Cache{cache: cache}
}

// Get retrieves a deep copy of a cached embedding. The copy prevents caller
// mutations from polluting the cache.
func (c *Cache) Get(hash string) (*Embedding, bool) {
	emb, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}
	return copyEmbedding(emb), true
}

// Set stores a deep copy of emb, so the caller keeping and mutating its
// instance cannot reach cached state. LRU eviction applies at capacity.
func (c *Cache) Set(hash string, emb *Embedding) {
	c.cache.Add(hash, copyEmbedding(emb))
}

func copyEmbedding(emb *Embedding) *Embedding {
	vectorCopy := make([]float32, len(emb.Vector))
	copy(vectorCopy, emb.Vector)

	return &Embedding{
		Vector:    vectorCopy,
		Dimension: emb.Dimension,
		Model:     emb.Model,
		Hash:      emb.Hash,
		Quantized: emb.Quantized,
		Fallback:  emb.Fallback,
		CacheHit:  emb.CacheHit,
	}
}

// Len returns the current cache size.
func (c *Cache) Len() int {
	return c.cache.Len()
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.cache.Purge()
}
