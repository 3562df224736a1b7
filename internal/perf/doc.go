// Package perf tracks timings, counters and process resource usage.
//
// All metric events flow over a channel into one aggregator goroutine,
// so concurrent producers never contend on shared counters. A background
// sampler polls process RSS and CPU at a fixed interval independent of
// the main work queue.
package perf
