// Package graph maintains the code relationship graph.
//
// Nodes are functions, classes, files, modules and imports; edges are
// calls, inherits, imports and contains relationships. Go files are
// extracted through go/ast, python and javascript through line patterns,
// and every other language contributes at least a file node.
//
// Analytics (shortest paths, neighborhoods, components, centrality) are
// memoized in an LRU cache that is purged on every mutation, so answers
// never go stale. A SQLite mirror persists snapshots across restarts.
package graph
