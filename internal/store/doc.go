// Package store provides the SQLite persistence context for pharmaapp.
//
// The store holds:
//   - Events: the append-only stock ledger, one row per operation id
//   - Stock: derived units per (medicine, package), mutated with each event
//   - Catalog: medicines, packages and therapies
//   - Todo snapshot: a durable mirror of the Today list keyed by source id
//   - Completions: Today completion keys per local day
//   - Live snoozes: per (therapy, minute bucket) snooze expiries
//
// # Critical Patterns
//
// Idempotent append:
//   - UNIQUE(operation_id) and UNIQUE(reversal_of) with ON CONFLICT DO NOTHING
//   - The event insert and the stock mutation share one transaction
//
// Deterministic reads:
//   - Event queries ORDER BY ts ASC, seq ASC
//   - Empty results are empty slices, never nil
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - One open connection: SQLite has a single writer
package store
