// Package stats records summaries of finished fan-out batches.
//
// MemoryRecorder keeps per-process totals and a short history. RedisRecorder
// aggregates the same totals in Redis hashes with one pipeline per batch, so
// every process feeding a dashboard refresh sees the same numbers. Both
// satisfy Recorder and plug into fanout.WithRecorder.
package stats
