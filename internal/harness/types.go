package harness

import "github.com/roach88/modplan/internal/modify"

// Trace event types.
const (
	EventRequest = "request"
	EventStep    = "step"
	EventOutcome = "outcome"
)

// TraceEvent is one line of a scenario trace: a submitted request, one of
// its step outcomes, or its final outcome.
type TraceEvent struct {
	Type string `json:"type"`
	// Request is the index of the request in setup followed by flow.
	Request   int    `json:"request"`
	Mapping   string `json:"mapping,omitempty"`
	Operation string `json:"operation,omitempty"`

	Seq      int64  `json:"seq,omitempty"`
	PlanType string `json:"plan_type,omitempty"`
	Resource string `json:"resource,omitempty"`
	Mode     string `json:"mode,omitempty"`
	Rows     int64  `json:"rows,omitempty"`
	Skipped  bool   `json:"skipped,omitempty"`
	Failed   bool   `json:"failed,omitempty"`

	// Outcome is "committed" or the error code of a failed request.
	Outcome   string `json:"outcome,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expect clauses and assertions match.
	Pass bool `json:"pass"`

	// Trace contains every request, step and outcome in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddRequestTrace adds a submitted request to the trace.
func (r *Result) AddRequestTrace(index int, mapping, operation string) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:      EventRequest,
		Request:   index,
		Mapping:   mapping,
		Operation: operation,
	})
}

// AddStepTrace adds a step outcome to the trace.
func (r *Result) AddStepTrace(index int, ev modify.ChangeEvent) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:     EventStep,
		Request:  index,
		Seq:      ev.Seq,
		PlanType: ev.PlanType.String(),
		Resource: ev.Resource,
		Mode:     ev.Mode,
		Rows:     ev.Rows,
		Skipped:  ev.Skipped,
		Failed:   ev.Failed,
	})
}

// AddOutcomeTrace adds the final outcome of a request to the trace.
// Requests rejected before execution carry no request id.
func (r *Result) AddOutcomeTrace(index int, requestID, outcome string) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:      EventOutcome,
		Request:   index,
		Outcome:   outcome,
		RequestID: requestID,
	})
}

// Steps returns the step events of the trace.
func (r *Result) Steps() []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if ev.Type == EventStep {
			out = append(out, ev)
		}
	}
	return out
}
