package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/domain"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/live"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/notify"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/store"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/today"
)

// Result is one applied refresh pass.
type Result struct {
	Generation    int64              `json:"generation"`
	Trigger       Trigger            `json:"trigger"`
	At            time.Time          `json:"at"`
	Today         today.State        `json:"today"`
	Notifications notify.Plan        `json:"notifications"`
	NotifyDiff    notify.Diff        `json:"notifyDiff"`
	Live          live.Plan          `json:"live"`
	LiveChange    live.Change        `json:"liveChange"`
	Snapshot      store.SnapshotDiff `json:"snapshot"`
}

// Outcome is delivered by RefreshAsync.
type Outcome struct {
	Result Result
	Err    error
}

// Engine recomputes and materializes every plan from the store.
//
// Thread-safety model:
//   - Refresh, RefreshAsync, Enqueue: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//   - Applying a result is serialized; only the latest generation applies
type Engine struct {
	store   *store.Store
	planner *notify.Planner
	center  notify.Center
	live    *live.Service
	surface live.Surface
	opts    today.Options
	now     func() time.Time

	gens  *Generations
	queue *triggerQueue

	mu   sync.Mutex // serializes apply and guards last
	last *Result

	// beforeApply runs between compute and apply. Tests use it to start a
	// competing pass.
	beforeApply func()
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the wall clock. Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithSurface sets the live surface. Default: an in-memory surface.
func WithSurface(s live.Surface) Option {
	return func(e *Engine) {
		e.surface = s
	}
}

// New creates an engine over the given collaborators.
func New(st *store.Store, planner *notify.Planner, center notify.Center, liveSvc *live.Service, opts today.Options, options ...Option) *Engine {
	e := &Engine{
		store:   st,
		planner: planner,
		center:  center,
		live:    liveSvc,
		surface: live.NewMemorySurface(),
		opts:    opts,
		now:     time.Now,
		gens:    NewGenerations(),
		queue:   newTriggerQueue(),
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// Generations exposes the pass counter.
func (e *Engine) Generations() *Generations {
	return e.gens
}

// Last returns the most recently applied result.
func (e *Engine) Last() (Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return Result{}, false
	}
	return *e.last, true
}

// Refresh runs one pass synchronously. If a newer pass starts before this
// one applies, it returns a SUPERSEDED RefreshError and changes nothing,
// stock alert cooldowns included.
func (e *Engine) Refresh(ctx context.Context, trigger Trigger) (Result, error) {
	gen := e.gens.Next()
	now := e.now()
	res := Result{Generation: gen, Trigger: trigger, At: now}

	snaps, err := e.store.LoadSnapshots(ctx)
	if err != nil {
		return Result{}, newStageError(ErrCodeLoadFailed, gen, "load", err)
	}
	completed, err := e.store.CompletedKeys(ctx, today.DayKey(now, e.opts.Location))
	if err != nil {
		return Result{}, newStageError(ErrCodeLoadFailed, gen, "load", err)
	}

	res.Today = today.Build(snaps, now, completed, e.opts)
	if res.Notifications, err = e.planner.Plan(ctx, snaps, now); err != nil {
		return Result{}, newStageError(ErrCodeComputeFailed, gen, "notify", err)
	}
	if res.Live, err = e.live.Plan(ctx, snaps); err != nil {
		return Result{}, newStageError(ErrCodeComputeFailed, gen, "live", err)
	}

	if e.beforeApply != nil {
		e.beforeApply()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.gens.IsLatest(gen) {
		slog.DebugContext(ctx, "refresh superseded", "generation", gen, "latest", e.gens.Current())
		return Result{}, newSupersededError(gen, e.gens.Current())
	}

	if res.Snapshot, err = e.store.SaveTodoSnapshot(ctx, res.Today.SyncToken, SnapshotRows(res.Today)); err != nil {
		return Result{}, newStageError(ErrCodeApplyFailed, gen, "today", err)
	}
	if res.NotifyDiff, err = notify.Apply(ctx, e.center, res.Notifications); err != nil {
		return Result{}, newStageError(ErrCodeApplyFailed, gen, "notify", err)
	}
	if err := e.planner.Commit(ctx, res.Notifications, now); err != nil {
		return Result{}, newStageError(ErrCodeApplyFailed, gen, "notify", err)
	}
	if res.LiveChange, err = live.ApplyPlan(ctx, e.surface, res.Live); err != nil {
		return Result{}, newStageError(ErrCodeApplyFailed, gen, "live", err)
	}

	e.last = &res
	slog.InfoContext(ctx, "refresh applied",
		"generation", gen,
		"trigger", trigger,
		"items", len(res.Today.Items),
		"snapshot_skipped", res.Snapshot.Skipped,
		"notifications", len(res.Notifications.Requests),
		"live", res.LiveChange,
	)
	return res, nil
}

// RefreshAsync runs one pass in its own goroutine and delivers the outcome
// on the returned channel.
func (e *Engine) RefreshAsync(ctx context.Context, trigger Trigger) <-chan Outcome {
	out := make(chan Outcome, 1)
	go func() {
		res, err := e.Refresh(ctx, trigger)
		out <- Outcome{Result: res, Err: err}
		close(out)
	}()
	return out
}

// SnapshotRows mirrors every Today item, open or completed, keyed by its
// completion key.
func SnapshotRows(state today.State) []store.TodoRow {
	rows := make([]store.TodoRow, 0, len(state.Items)+len(state.Completed))
	for _, list := range [][]domain.TodoItem{state.Items, state.Completed} {
		for _, it := range list {
			rows = append(rows, store.TodoRow{SourceID: today.CompletionKey(it), Item: it})
		}
	}
	return rows
}

// Enqueue submits a trigger to the Run loop. Returns false once stopped.
func (e *Engine) Enqueue(trigger Trigger) bool {
	return e.queue.Enqueue(Request{Trigger: trigger, At: e.now()})
}

// Run serves queued triggers until ctx is cancelled or Stop is called.
// Triggers that arrive while a pass is running coalesce into one pass.
// Failed passes are logged and the loop continues.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("refresh loop starting")

	for {
		if req, superseded, ok := e.queue.Drain(); ok {
			if superseded > 0 {
				slog.Debug("refresh triggers coalesced", "dropped", superseded, "serving", req.Trigger)
			}
			if _, err := e.Refresh(ctx, req.Trigger); err != nil && !IsSuperseded(err) {
				slog.Error("refresh failed", "error", err, "trigger", req.Trigger)
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("refresh loop stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes when the queue is closed.
			if e.queue.Len() == 0 && e.queue.Closed() {
				slog.Info("refresh loop stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the trigger queue, which makes Run return.
func (e *Engine) Stop() {
	e.queue.Close()
}
