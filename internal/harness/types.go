package harness

import (
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
)

// Trace event kinds.
const (
	TraceEventEmitted = "event"
	TraceRuleRun      = "rule"
	TraceAction       = "action"
)

// TraceEvent is one step of a scenario execution: an emitted event, a rule
// run or an action outcome.
type TraceEvent struct {
	Type    string         `json:"type"`
	Seq     int64          `json:"seq"`
	Event   ir.TriggerType `json:"event,omitempty"`
	Matched int            `json:"matched,omitempty"`
	Skipped int            `json:"skipped,omitempty"`
	Rule    string         `json:"rule,omitempty"`
	RunID   string         `json:"run_id,omitempty"`
	State   string         `json:"state,omitempty"`
	Action  ir.ActionType  `json:"action,omitempty"`
	Order   int            `json:"order,omitempty"`
	Success bool           `json:"success,omitempty"`
	Result  ir.Object      `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
	Code    string         `json:"code,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains the emitted events, rule runs and action outcomes in
	// execution order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
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

// Actions returns the action trace events in order.
func (r *Result) Actions() []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if ev.Type == TraceAction {
			out = append(out, ev)
		}
	}
	return out
}
