package graph

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultQueryCacheLen bounds the number of cached analytics answers.
const DefaultQueryCacheLen = 512

// queryCache memoizes analytics results keyed by operation fingerprint.
// Entries carry no TTL; any graph mutation purges the whole cache, so a
// cached answer is always consistent with the current topology.
type queryCache struct {
	entries *lru.Cache[string, any]
}

func newQueryCache(maxLen int) *queryCache {
	if maxLen <= 0 {
		maxLen = DefaultQueryCacheLen
	}
	entries, err := lru.New[string, any](maxLen)
	if err != nil {
		panic(fmt.Sprintf("query cache: %v", err))
	}
	return &queryCache{entries: entries}
}

func (c *queryCache) get(key string) (any, bool) {
	return c.entries.Get(key)
}

func (c *queryCache) set(key string, value any) {
	c.entries.Add(key, value)
}

func (c *queryCache) purge() {
	c.entries.Purge()
}

func (c *queryCache) len() int {
	return c.entries.Len()
}
