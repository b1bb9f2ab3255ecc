package harness

import (
	"context"
	"fmt"
	"os"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/actions"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/compiler"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/engine"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/store"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/testutil"
)

// Harness holds the collaborators of one scenario execution.
type Harness struct {
	store     *store.Store
	engine    *engine.Engine
	messenger *testutil.RecordingMessenger
	tenant    string
	ruleKeys  map[string]string // rule ID -> rule key
	seq       int64
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database with deterministic clock and IDs
// 2. Compile and store the scenario rules
// 3. Emit each event through the engine, checking expect clauses
// 4. Evaluate assertions against sends, trace and stored records
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	st, err := store.Open(":memory:",
		store.WithClock(testutil.NewStepClock(testutil.Epoch, 0).Now),
		store.WithIDGenerator(testutil.NewSequentialIDs("id").Next),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	messenger := &testutil.RecordingMessenger{Fail: scenario.MessengerFail}
	h := &Harness{
		store:     st,
		messenger: messenger,
		tenant:    scenario.Tenant,
		ruleKeys:  make(map[string]string),
		engine: engine.New(st, actions.NewDefaultRegistry(messenger, st),
			engine.WithRunIDGenerator(testutil.NewSequentialIDs("run")),
		),
	}

	if err := h.loadRules(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	result := NewResult()
	if err := h.emitEvents(ctx, scenario.Events, result); err != nil {
		return nil, fmt.Errorf("failed to emit events: %w", err)
	}

	actx := &AssertionContext{
		Store:     st,
		Messenger: messenger,
		Tenant:    scenario.Tenant,
		Ctx:       ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	return result, nil
}

// loadRules compiles the scenario's rule files, then its inline source, and
// stores every rule under a key-derived ID.
func (h *Harness) loadRules(ctx context.Context, scenario *Scenario) error {
	var defs []compiler.Definition
	for _, path := range scenario.Rules {
		src, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		fileDefs, errs := compiler.CompileSource(path, src)
		if len(errs) > 0 {
			return fmt.Errorf("compile %s: %w", path, errs[0])
		}
		defs = append(defs, fileDefs...)
	}
	if scenario.Source != "" {
		inline, errs := compiler.CompileSource(scenario.Name+".cue", []byte(scenario.Source))
		if len(errs) > 0 {
			return fmt.Errorf("compile inline source: %w", errs[0])
		}
		defs = append(defs, inline...)
	}

	for _, def := range defs {
		r := def.Rule
		if r.TenantID == "" {
			r.TenantID = h.tenant
		}
		if verrs := compiler.Validate(r); len(verrs) > 0 {
			return fmt.Errorf("rule %q: %w", def.Key, verrs[0])
		}
		r.ID = compiler.RuleID(r.TenantID, def.Key)
		if _, dup := h.ruleKeys[r.ID]; dup {
			return fmt.Errorf("rule %q declared twice", def.Key)
		}
		if err := h.store.CreateRule(ctx, &r); err != nil {
			return fmt.Errorf("store rule %q: %w", def.Key, err)
		}
		h.ruleKeys[r.ID] = def.Key
	}
	return nil
}

// emitEvents emits each step through the engine and records the trace.
func (h *Harness) emitEvents(ctx context.Context, steps []EventStep, result *Result) error {
	for i, step := range steps {
		data, err := ir.ObjectFromMap(step.Data)
		if err != nil {
			return fmt.Errorf("events[%d]: convert data: %w", i, err)
		}
		tenant := step.Tenant
		if tenant == "" {
			tenant = h.tenant
		}

		summary := h.engine.Emit(ctx, ir.TriggerEvent{
			Type:     ir.TriggerType(step.Type),
			TenantID: tenant,
			Data:     data,
		})
		if summary.Error != "" {
			result.AddError(fmt.Sprintf("events[%d]: emit failed: %s", i, summary.Error))
		}
		h.trace(result, summary)

		if step.Expect != nil {
			for _, msg := range checkExpect(i, step.Expect, summary) {
				result.AddError(msg)
			}
		}
	}
	return nil
}

func (h *Harness) trace(result *Result, summary engine.Summary) {
	h.seq++
	result.Trace = append(result.Trace, TraceEvent{
		Type:    TraceEventEmitted,
		Seq:     h.seq,
		Event:   summary.EventType,
		Matched: summary.Matched,
		Skipped: len(summary.Skipped),
	})

	for _, run := range summary.Runs {
		key := h.ruleKeys[run.RuleID]
		if key == "" {
			key = run.RuleID
		}
		h.seq++
		result.Trace = append(result.Trace, TraceEvent{
			Type:  TraceRuleRun,
			Seq:   h.seq,
			Rule:  key,
			RunID: run.RunID,
			State: string(run.State),
			Error: run.Error,
		})
		for _, ar := range run.Results {
			h.seq++
			result.Trace = append(result.Trace, TraceEvent{
				Type:    TraceAction,
				Seq:     h.seq,
				Rule:    key,
				Action:  ar.Type,
				Order:   ar.Order,
				Success: ar.Success,
				Result:  ar.Result,
				Error:   ar.Error,
				Code:    string(ar.Code),
			})
		}
	}
}

func checkExpect(i int, want *ExpectClause, summary engine.Summary) []string {
	var failed, aborted int
	for _, run := range summary.Runs {
		if run.State == engine.StateAborted {
			aborted++
		}
		for _, ar := range run.Results {
			if !ar.Success {
				failed++
			}
		}
	}

	var errs []string
	check := func(name string, want *int, got int) {
		if want != nil && *want != got {
			errs = append(errs, fmt.Sprintf("events[%d]: expected %s=%d, got %d", i, name, *want, got))
		}
	}
	check("matched", want.Matched, summary.Matched)
	check("failed", want.Failed, failed)
	check("aborted", want.Aborted, aborted)
	return errs
}
