// Package harness runs YAML conformance scenarios against the ledger and the
// Today aggregator.
//
// # Scenario Format
//
//	name: intake_undo
//	description: "What this scenario validates"
//	now: "2025-03-10T09:00:00Z"
//	timezone: Europe/Rome
//	cabinet: |
//	  medicines: vitamina: { ... }
//	setup:
//	  - action: purchase
//	    args: { operation_id: buy-1, medicine: vitamina, package: vitamina/box }
//	flow:
//	  - action: intake
//	    args: { operation_id: take-1, medicine: vitamina }
//	    expect: { outcome: recorded }
//	assertions:
//	  - type: stock
//	    medicine: vitamina
//	    units: 4
//
// The cabinet is either inline CUE source (cabinet) or a directory of CUE
// files relative to the scenario file (cabinet_dir).
//
// # Actions
//
//   - intake, purchase, prescription_request, prescription_received, adjust:
//     record a ledger event (args: operation_id, medicine, package, therapy, quantity)
//   - undo: reverse an operation (args: target, operation_id)
//   - advance: move the clock (args: minutes)
//   - complete, reopen: toggle a Today item for the current day (args: item)
//   - delete_therapy: soft-delete a therapy (args: therapy)
//
// # Assertion Types
//
//   - trace_contains: an action appears in the trace with matching args
//   - trace_order: actions appear in the given order
//   - trace_count: an action appears exactly N times
//   - stock: the stored stock of a medicine equals units
//   - today_contains: an item is in the final Today list (optional detail, completed)
//   - today_absent: an item is not in the final Today list
//   - today_order: open items appear in the given relative order
//
// # Deterministic Testing
//
// Every scenario runs against a fresh in-memory store with a fixed clock
// starting at now, so the trace and final state are byte-identical across
// runs and can be compared against golden files.
package harness
