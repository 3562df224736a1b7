// Package optimizer assembles token-bounded context selections.
//
// Given candidate chunks, a query and a token budget, Select reserves
// room for the query and expected response, scores each chunk with
// weighted relevance signals, tiers candidates by score and greedily
// packs whole chunks into per-tier shares of the remaining budget.
package optimizer
