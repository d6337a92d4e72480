// Package store provides SQLite-backed durable storage for simulation runs.
//
// The store is an append-only run log:
//   - Runs: seed, inputs, planned ticks and, once finished, digests and summary
//   - Ticks: one row per tick with the zstd-compressed JSON TickResult
//   - Events: narrative events, queryable by significance
//   - Violations: contract violations in detection order
//
// # Ordering
//
// All ordering uses tick and seq columns (logical time), NEVER timestamps.
// Timestamps are informational only, so a replayed run reads back in the
// same order as the original.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Store writes implement engine.RunSink through Recorder, so an engine
// persists every tick as it commits.
package store
