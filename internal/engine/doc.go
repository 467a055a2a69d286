// Package engine coordinates one-shot refresh passes.
//
// A pass is triggered by an external lifecycle or time event (startup,
// foreground, background tick, user action). It loads the full snapshot
// from the store, recomputes the Today list, the notification plan and the
// live-surface plan from scratch, and then materializes them by diffing
// against what is currently stored or scheduled.
//
// There is no background scheduler. Staleness is handled by recomputing:
// every pass takes a generation before computing, and applies its result
// only if no newer pass started meanwhile. A superseded pass is simply not
// applied. Timing is expressed only as NextRefreshAt hints for the caller's
// own timer.
//
// Run offers a single-goroutine loop over queued triggers for long-running
// hosts (the HTTP server); bursts of triggers coalesce into one pass.
package engine
