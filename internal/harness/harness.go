package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/cabinet"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/ledger"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/store"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/testutil"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/today"
)

// Harness executes scenario steps against one store.
type Harness struct {
	store  *store.Store
	ledger *ledger.Service
	clock  *testutil.FixedClock
	opts   today.Options
	seq    int64
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database:
//  1. Load the cabinet and import it
//  2. Execute setup steps (any failure aborts)
//  3. Execute flow steps, checking expect clauses
//  4. Build the final Today state and stock
//  5. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	loc, err := scenario.Location()
	if err != nil {
		return nil, fmt.Errorf("scenario timezone: %w", err)
	}
	start, err := scenario.Start()
	if err != nil {
		return nil, fmt.Errorf("scenario start: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	if err := importCabinet(ctx, st, scenario, loc); err != nil {
		return nil, err
	}

	clock := testutil.NewFixedClock(start)
	h := &Harness{
		store:  st,
		ledger: ledger.New(st, ledger.WithClock(clock.Now)),
		clock:  clock,
		opts:   today.Options{ThresholdDays: scenario.ThresholdDays, Location: loc},
	}

	result := NewResult()
	for i, step := range scenario.Setup {
		ev := h.execute(ctx, step)
		result.AddTrace(ev)
		if ev.Outcome == OutcomeError {
			return nil, fmt.Errorf("setup step %d (%s): %s", i, step.Action, ev.Message)
		}
	}

	for i, step := range scenario.Flow {
		ev := h.execute(ctx, step)
		result.AddTrace(ev)
		if msg := checkExpect(step, ev); msg != "" {
			result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Action, msg))
		}
	}

	if err := h.finalState(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to read final state: %w", err)
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func importCabinet(ctx context.Context, st *store.Store, scenario *Scenario, loc *time.Location) error {
	opts := cabinet.Options{Mode: cabinet.LoadModeFailFast, Location: loc}
	var (
		cab  *cabinet.Cabinet
		errs []error
	)
	if scenario.CabinetDir != "" {
		cab, errs = cabinet.LoadDir(scenario.CabinetDir, opts)
	} else {
		cab, errs = cabinet.LoadString(scenario.Cabinet, scenario.Name+".cue", opts)
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to load cabinet: %w", errors.Join(errs...))
	}
	if _, err := cabinet.Import(ctx, st, cab); err != nil {
		return fmt.Errorf("failed to import cabinet: %w", err)
	}
	return nil
}

// execute runs one step and describes it as a trace event. Failures are
// captured in the event rather than returned.
func (h *Harness) execute(ctx context.Context, step Step) TraceEvent {
	h.seq++
	ev := TraceEvent{Seq: h.seq, Action: step.Action, Args: step.Args, Outcome: OutcomeOK}

	var err error
	switch step.Action {
	case ActionUndo:
		var res ledger.Result
		res, err = h.ledger.Undo(ctx, argString(step.Args, "target"), argString(step.Args, "operation_id"))
		if err == nil {
			ev.Outcome, ev.OperationID = ledgerOutcome(res)
		}
	case ActionAdvance:
		h.clock.Advance(time.Duration(argFloat(step.Args, "minutes") * float64(time.Minute)))
	case ActionComplete, ActionReopen:
		err = h.toggle(ctx, step.Action, argString(step.Args, "item"))
	case ActionDeleteTherapy:
		err = h.store.DeleteTherapy(ctx, argString(step.Args, "therapy"))
	default:
		var res ledger.Result
		res, err = h.record(ctx, step.Action, ledger.Request{
			OperationID: argString(step.Args, "operation_id"),
			MedicineID:  argString(step.Args, "medicine"),
			PackageID:   argString(step.Args, "package"),
			TherapyID:   argString(step.Args, "therapy"),
			Quantity:    argFloat(step.Args, "quantity"),
		})
		if err == nil {
			ev.Outcome, ev.OperationID = ledgerOutcome(res)
		}
	}

	if err != nil {
		ev.Outcome = OutcomeError
		ev.Code = errorCode(err)
		ev.Message = err.Error()
	}
	return ev
}

func (h *Harness) record(ctx context.Context, action string, req ledger.Request) (ledger.Result, error) {
	switch action {
	case ActionIntake:
		return h.ledger.RecordIntake(ctx, req)
	case ActionPurchase:
		return h.ledger.RecordPurchase(ctx, req)
	case ActionPrescriptionRequest:
		return h.ledger.RecordPrescriptionRequest(ctx, req)
	case ActionPrescriptionReceived:
		return h.ledger.RecordPrescriptionReceived(ctx, req)
	case ActionAdjust:
		return h.ledger.RecordStockAdjustment(ctx, req)
	}
	return ledger.Result{}, fmt.Errorf("unknown action %q", action)
}

// toggle completes or reopens an item of the current Today list.
func (h *Harness) toggle(ctx context.Context, action, itemID string) error {
	now := h.clock.Now()
	day := today.DayKey(now, h.opts.Location)
	if action == ActionReopen {
		return h.store.ReopenTodo(ctx, itemID, day)
	}

	state, err := h.build(ctx)
	if err != nil {
		return err
	}
	for _, it := range state.Items {
		if it.ID == itemID {
			return h.store.CompleteTodo(ctx, today.CompletionKey(it), day, now)
		}
	}
	return fmt.Errorf("today item %s: %w", itemID, store.ErrNotFound)
}

func (h *Harness) build(ctx context.Context) (today.State, error) {
	now := h.clock.Now()
	snaps, err := h.store.LoadSnapshots(ctx)
	if err != nil {
		return today.State{}, err
	}
	completed, err := h.store.CompletedKeys(ctx, today.DayKey(now, h.opts.Location))
	if err != nil {
		return today.State{}, err
	}
	return today.Build(snaps, now, completed, h.opts), nil
}

func (h *Harness) finalState(ctx context.Context, result *Result) error {
	state, err := h.build(ctx)
	if err != nil {
		return err
	}
	for _, it := range state.Items {
		result.Today = append(result.Today, TodayLine{ID: it.ID, Category: string(it.Category), Title: it.Title, Detail: it.Detail})
	}
	for _, it := range state.Completed {
		result.Today = append(result.Today, TodayLine{ID: it.ID, Category: string(it.Category), Title: it.Title, Detail: it.Detail, Completed: true})
	}
	for _, m := range state.Medicines {
		units, err := h.store.MedicineStock(ctx, m.MedicineID)
		if err != nil {
			return err
		}
		result.Stock[m.MedicineID] = units
	}
	return nil
}

func ledgerOutcome(res ledger.Result) (string, string) {
	if res.Duplicate {
		return OutcomeDuplicate, res.Event.OperationID
	}
	return OutcomeRecorded, res.Event.OperationID
}

func errorCode(err error) string {
	var le *ledger.Error
	if errors.As(err, &le) {
		return string(le.Code)
	}
	if errors.Is(err, store.ErrNotFound) {
		return string(ledger.ErrCodeNotFound)
	}
	return "ERROR"
}

func checkExpect(step Step, ev TraceEvent) string {
	if step.Expect == nil {
		return ""
	}
	if ev.Outcome != step.Expect.Outcome {
		if ev.Message != "" {
			return fmt.Sprintf("expected outcome %s, got %s (%s)", step.Expect.Outcome, ev.Outcome, ev.Message)
		}
		return fmt.Sprintf("expected outcome %s, got %s", step.Expect.Outcome, ev.Outcome)
	}
	if step.Expect.Code != "" && ev.Code != step.Expect.Code {
		return fmt.Sprintf("expected code %s, got %q", step.Expect.Code, ev.Code)
	}
	return ""
}

func argString(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func argFloat(args map[string]any, key string) float64 {
	switch v := args[key].(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float64:
		return v
	}
	return 0
}
