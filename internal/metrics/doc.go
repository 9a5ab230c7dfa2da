// Package metrics provides lock-free counters and a latency histogram for
// inkauth observability.
//
// # Design
//
// Counters are stored in cache-line-padded uint64 slots and incremented
// atomically. The histogram uses 8 fixed buckets (<=5ms ... +Inf). The write
// path does not allocate.
//
// Export (Prometheus, OTel) lives in metrics/export and reads [Snapshot] values.
//
// # What this package must NOT do
//
//   - Perform I/O or network calls.
//   - Expose global metric registries.
package metrics
