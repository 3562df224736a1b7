// Package vectorstore persists chunk embeddings and serves similarity
// search over them.
//
// Store wraps a Backend with batched bounded-concurrency writes, hybrid
// ranking that blends vector similarity with full-text relevance, and a
// TTL-bounded LRU cache of result lists. PGBackend implements Backend on
// Postgres with the pgvector extension so both search legs execute
// server-side against indexes.
package vectorstore
