package harness

// Step outcomes recorded in the trace.
const (
	OutcomeRecorded  = "recorded"
	OutcomeDuplicate = "duplicate"
	OutcomeOK        = "ok"
	OutcomeError     = "error"
)

// TraceEvent is one executed step.
type TraceEvent struct {
	Seq         int64          `json:"seq"`
	Action      string         `json:"action"`
	Args        map[string]any `json:"args,omitempty"`
	Outcome     string         `json:"outcome"`
	OperationID string         `json:"operation_id,omitempty"`
	Code        string         `json:"code,omitempty"`
	Message     string         `json:"-"`
}

// TodayLine is one Today item in the final state.
type TodayLine struct {
	ID        string `json:"id"`
	Category  string `json:"category"`
	Title     string `json:"title"`
	Detail    string `json:"detail,omitempty"`
	Completed bool   `json:"completed,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion matched.
	Pass bool `json:"pass"`

	// Trace contains setup and flow steps in execution order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`

	// Today lists open items first, then completed ones.
	Today []TodayLine `json:"today"`

	// Stock is the stored stock per medicine id.
	Stock map[string]float64 `json:"stock"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Today:  []TodayLine{},
		Stock:  make(map[string]float64),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an executed step.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}

// Line returns the Today line with id.
func (r *Result) Line(id string) (TodayLine, bool) {
	for _, l := range r.Today {
		if l.ID == id {
			return l, true
		}
	}
	return TodayLine{}, false
}
