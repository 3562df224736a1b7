// Package embedder converts chunk text into vector embeddings.
//
// An Engine wraps a Provider with an LRU cache keyed by a content hash of
// the model name and normalized text, a model fallback chain, optional
// quantization and code-aware preprocessing. Cached entries are returned
// without a provider round trip; identical content therefore embeds at
// most once per model.
//
// Providers implement the transport: HTTPProvider speaks the common
// OpenAI-style embeddings wire format with retry and backoff, and
// LocalProvider derives deterministic vectors from a content digest for
// offline use and tests.
package embedder
