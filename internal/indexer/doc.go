// Package indexer orchestrates indexing runs.
//
// A run moves through collecting, chunking, embedding, storing and
// reporting. Within one file the pipeline is strictly sequential; across
// files each phase fans out under a bounded worker limit. Per-file
// failures are recorded in the run summary and never abort the run;
// only an empty file set or cancellation does.
package indexer
