package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
)

// ActionResult is the outcome of one action dispatch.
type ActionResult struct {
	ActionID string           `json:"action_id"`
	Type     ir.ActionType    `json:"type"`
	Order    int              `json:"order"`
	Success  bool             `json:"success"`
	Result   ir.Object        `json:"result,omitempty"`
	Error    string           `json:"error,omitempty"`
	Code     RuntimeErrorCode `json:"code,omitempty"`
	Duration time.Duration    `json:"-"`
}

// executeActions runs the rule's actions strictly in ascending order against
// one ExecutionContext. Every action yields exactly one result; a failure is
// recorded and execution moves on to the next action.
//
// Once ctx is done, remaining actions are not dispatched and are recorded
// as cancelled.
func (e *Engine) executeActions(ctx context.Context, rule ir.Rule, ec ir.ExecutionContext) []ActionResult {
	ordered := ir.SortActions(rule.Actions)
	results := make([]ActionResult, 0, len(ordered))

	for _, action := range ordered {
		res := ActionResult{ActionID: action.ID, Type: action.Type, Order: action.Order}

		if err := ctx.Err(); err != nil {
			res.fail(newCancelledError(rule.ID, action.ID, err))
			results = append(results, res)
			continue
		}

		start := time.Now()
		out, err := e.dispatch(ctx, rule.ID, action, ec.Clone())
		res.Duration = time.Since(start)
		if err != nil {
			res.fail(err)
			slog.Warn("action failed",
				"rule_id", rule.ID,
				"run_id", ec.RunID,
				"action_id", action.ID,
				"action_type", action.Type,
				"error", err,
			)
		} else {
			res.Success = true
			res.Result = out
			slog.Debug("action completed",
				"rule_id", rule.ID,
				"run_id", ec.RunID,
				"action_id", action.ID,
				"action_type", action.Type,
			)
		}
		e.observer.ActionFinished(action.Type, res.Success, res.Duration)
		results = append(results, res)
	}
	return results
}

func (r *ActionResult) fail(err error) {
	r.Success = false
	r.Error = err.Error()
	r.Code = CodeOf(err)
}

type outcome struct {
	out ir.Object
	err error
}

func (o outcome) result() (ir.Object, error) {
	if o.err != nil {
		return nil, o.err
	}
	if o.out == nil {
		return ir.Object{}, nil
	}
	return o.out, nil
}

// dispatch runs one handler behind a failure boundary: a panic, a timeout
// or a cancelled host context all surface as errors. The handler goroutine
// writes to a buffered channel so it never leaks blocked on send after a
// timeout.
func (e *Engine) dispatch(ctx context.Context, ruleID string, action ir.Action, ec ir.ExecutionContext) (ir.Object, error) {
	handler, ok := e.registry.Lookup(action.Type)
	if !ok {
		return nil, newUnknownActionError(ruleID, action.ID)
	}

	actx, cancel := context.WithTimeout(ctx, e.actionTimeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: newPanicError(ruleID, action.ID, r)}
			}
		}()
		out, err := handler.Execute(actx, action, ec)
		done <- outcome{out: out, err: err}
	}()

	select {
	case o := <-done:
		return o.result()
	case <-actx.Done():
		select {
		case o := <-done:
			return o.result()
		default:
		}
		if err := ctx.Err(); err != nil {
			return nil, newCancelledError(ruleID, action.ID, err)
		}
		return nil, newTimeoutError(ruleID, action.ID, e.actionTimeout)
	}
}
