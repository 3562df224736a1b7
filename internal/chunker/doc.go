// Package chunker splits raw file text into overlapping chunks at one or
// more granularities, attaching per-chunk metadata and importance scores.
//
// # Strategies
//
// The strategy set is closed (see Strategy):
//   - fixed: overlapping fixed-size word windows
//   - sentence: whole sentences grouped to a token budget
//   - semantic: sentence groups split where lexical similarity drops
//   - hierarchical: fixed windows at several sizes, linked across levels
//
// A failed strategy never propagates an error: the chunker degrades to
// fixed-token chunking with a fixed quality score and the result flagged
// Fallback. A file always yields best-effort chunks.
//
// # Scoring
//
// Each chunk gets an importance score in [0.1, 1.0] from structural keyword
// signals, documentation density and a size-fit bonus, plus a set of
// semantic tags (definitions, imports, tests, async, error handling, design
// pattern names). Each ChunkingResult gets a quality score that averages
// size consistency, content coverage, mean importance and tag density.
//
// # Hierarchy
//
// Hierarchical runs link a fine chunk to a coarse chunk when the word
// overlap ratio (fine ∩ coarse / fine) exceeds a configurable threshold
// (default 0.3). Links are slice indices within the run, not pointers.
package chunker
