// Package ledger implements the idempotent stock ledger use cases.
//
// Every recording use case is keyed by a caller-supplied operation id:
//   - If the id already exists, the prior event is returned with
//     Duplicate=true and nothing is written
//   - Otherwise the event and its stock delta are written in one
//     transaction by the store
//
// Undo appends a reversal event referencing the original operation id. It
// never deletes. An operation is reversed at most once.
package ledger
