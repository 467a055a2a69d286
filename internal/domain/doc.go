// Package domain provides the value types shared by every pharmaapp package.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import domain; domain imports nothing internal.
//
// Key design constraints:
//   - Entities reference each other by id, never by pointer graph
//   - Events are append-only; a reversal voids an event without removing it
//   - TodoItems are derived and never a source of truth
//   - JSON tags use camelCase to match the persisted clinical-rules shape
package domain
