package engine

import (
	"sync"
	"time"
)

// Trigger says why a refresh was requested.
type Trigger string

const (
	TriggerStartup    Trigger = "startup"
	TriggerForeground Trigger = "foreground"
	TriggerTick       Trigger = "tick"
	TriggerAction     Trigger = "action"
)

// Request is one queued refresh trigger.
type Request struct {
	Trigger Trigger
	At      time.Time
}

// triggerQueue is a thread-safe FIFO of refresh triggers.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop (prevents goroutine hangs on context cancellation).
type triggerQueue struct {
	mu       sync.Mutex
	requests []Request
	closed   bool
	signal   chan struct{} // Signals availability (buffered, size 1)
}

func newTriggerQueue() *triggerQueue {
	return &triggerQueue{
		requests: make([]Request, 0, 8),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds a trigger. Returns false if the queue is closed.
func (q *triggerQueue) Enqueue(r Request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.requests = append(q.requests, r)

	// Non-blocking: a buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// Drain removes every queued trigger. The last one is the one to serve;
// the rest are superseded by it.
func (q *triggerQueue) Drain() (last Request, superseded int, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.requests) == 0 {
		return Request{}, 0, false
	}
	last = q.requests[len(q.requests)-1]
	superseded = len(q.requests) - 1
	q.requests = q.requests[:0]
	return last, superseded, true
}

// Wait returns a channel that signals when triggers may be available.
func (q *triggerQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *triggerQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests)
}

// Closed reports whether Close was called.
func (q *triggerQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close signals that no more triggers will be enqueued.
func (q *triggerQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
