package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/actions"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/store"
)

// DefaultActionTimeout bounds a single handler call.
const DefaultActionTimeout = 10 * time.Second

const tracerName = "github.com/tallesnicacio/bizflow-pro-sub000/internal/engine"

// RunIDGenerator generates the identifier of each rule run.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type RunIDGenerator interface {
	Generate() string
}

// Observer receives engine measurements. The metrics package implements it
// with Prometheus collectors.
type Observer interface {
	EventReceived(t ir.TriggerType)
	RulesMatched(t ir.TriggerType, n int)
	LookupFailed(t ir.TriggerType)
	ActionFinished(t ir.ActionType, success bool, d time.Duration)
}

type nopObserver struct{}

func (nopObserver) EventReceived(ir.TriggerType)                     {}
func (nopObserver) RulesMatched(ir.TriggerType, int)                 {}
func (nopObserver) LookupFailed(ir.TriggerType)                      {}
func (nopObserver) ActionFinished(ir.ActionType, bool, time.Duration) {}

// State is the position of one rule-event pairing in the control flow.
// States are reported in results only and never persisted.
type State string

const (
	StatePending   State = "PENDING"
	StateMatched   State = "MATCHED"
	StateRunning   State = "RUNNING"
	StateCompleted State = "COMPLETED"
	StateSkipped   State = "SKIPPED"
	StateAborted   State = "ABORTED"
)

// RuleRun is the result of executing one matched rule.
//
// Success reports that execution was attempted; it does not mean every
// action succeeded. Inspect Results for per-action outcomes.
type RuleRun struct {
	RuleID   string         `json:"rule_id"`
	RuleName string         `json:"rule_name,omitempty"`
	RunID    string         `json:"run_id"`
	Seq      int64          `json:"seq"`
	State    State          `json:"state"`
	Success  bool           `json:"success"`
	Error    string         `json:"error,omitempty"`
	Results  []ActionResult `json:"results,omitempty"`
}

// Summary aggregates the outcome of one emitted event.
type Summary struct {
	EventType ir.TriggerType `json:"event_type"`
	TenantID  string         `json:"tenant_id"`
	EventID   string         `json:"event_id,omitempty"`
	Matched   int            `json:"matched"`
	Skipped   []Skip         `json:"skipped,omitempty"`
	Runs      []RuleRun      `json:"runs"`
	// Error is set when the event was rejected or the rule lookup failed.
	// Either case means zero rules ran.
	Error string `json:"error,omitempty"`
}

// Engine matches trigger events to rules and executes their actions.
//
// Safe for concurrent use: Emit may be called from many goroutines.
type Engine struct {
	rules         store.RuleReader
	registry      *actions.Registry
	clock         *Clock
	runIDs        RunIDGenerator
	actionTimeout time.Duration
	observer      Observer
	tracer        trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithActionTimeout sets the per-action timeout. Non-positive values keep
// the default.
func WithActionTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.actionTimeout = d
		}
	}
}

// WithObserver installs a metrics observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithRunIDGenerator overrides the run ID generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(e *Engine) {
		if g != nil {
			e.runIDs = g
		}
	}
}

// WithClock overrides the logical clock that stamps rule runs.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithTracerProvider uses tp instead of the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) {
		if tp != nil {
			e.tracer = tp.Tracer(tracerName)
		}
	}
}

// New creates an Engine reading rules from rules and dispatching actions
// through registry.
func New(rules store.RuleReader, registry *actions.Registry, opts ...Option) *Engine {
	e := &Engine{
		rules:         rules,
		registry:      registry,
		clock:         NewClock(),
		runIDs:        UUIDv7Generator{},
		actionTimeout: DefaultActionTimeout,
		observer:      nopObserver{},
		tracer:        otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Emit processes one trigger event: it matches the tenant's rules and runs
// each matched rule. Emit never returns an error and never panics; every
// failure is captured in the Summary and logged.
func (e *Engine) Emit(ctx context.Context, ev ir.TriggerEvent) (summary Summary) {
	summary = Summary{EventType: ev.Type, TenantID: ev.TenantID, Runs: []RuleRun{}}

	ctx, span := e.tracer.Start(ctx, "engine.emit",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("bizflow.event_type", string(ev.Type)),
			attribute.String("bizflow.tenant_id", ev.TenantID),
		),
	)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("engine panic during emit",
				"event_type", ev.Type,
				"tenant_id", ev.TenantID,
				"panic", r,
			)
			summary.Error = fmt.Sprintf("engine panic: %v", r)
			span.SetStatus(codes.Error, summary.Error)
		}
		span.SetAttributes(attribute.Int("bizflow.rules_matched", summary.Matched))
		span.End()
	}()

	if err := ev.Validate(); err != nil {
		slog.Warn("event rejected", "event_type", ev.Type, "tenant_id", ev.TenantID, "error", err)
		summary.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid event")
		return summary
	}
	e.observer.EventReceived(ev.Type)
	ev = ev.WithDerivedKeys()

	eventID, err := ir.EventFingerprint(ev)
	if err != nil {
		// Effects still run; only messenger deduplication is lost.
		slog.Warn("event fingerprint failed", "event_type", ev.Type, "tenant_id", ev.TenantID, "error", err)
	}
	summary.EventID = eventID

	matched, skipped, err := e.match(ctx, ev)
	if err != nil {
		slog.Error("rule lookup failed",
			"event_type", ev.Type,
			"tenant_id", ev.TenantID,
			"error", err,
		)
		e.observer.LookupFailed(ev.Type)
		summary.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "rule lookup failed")
		return summary
	}
	summary.Matched = len(matched)
	summary.Skipped = skipped
	e.observer.RulesMatched(ev.Type, len(matched))

	slog.Info("event matched",
		"event_type", ev.Type,
		"tenant_id", ev.TenantID,
		"event_id", eventID,
		"matched", len(matched),
		"skipped", len(skipped),
	)

	for _, rule := range matched {
		summary.Runs = append(summary.Runs, e.runRule(ctx, rule, ev, eventID))
	}
	return summary
}

// runRule executes one matched rule. A panic or malformed rule aborts only
// this rule.
func (e *Engine) runRule(ctx context.Context, rule ir.Rule, ev ir.TriggerEvent, eventID string) (run RuleRun) {
	run = RuleRun{
		RuleID:   rule.ID,
		RuleName: rule.Name,
		RunID:    e.runIDs.Generate(),
		Seq:      e.clock.Next(),
		State:    StateMatched,
	}

	ctx, span := e.tracer.Start(ctx, "engine.rule",
		trace.WithAttributes(
			attribute.String("bizflow.rule_id", rule.ID),
			attribute.String("bizflow.run_id", run.RunID),
			attribute.Int("bizflow.actions", len(rule.Actions)),
		),
	)
	defer func() {
		if r := recover(); r != nil {
			err := &RuntimeError{Code: ErrCodeMalformedRule, Message: fmt.Sprintf("panic: %v", r), RuleID: rule.ID}
			run = abort(run, err)
			slog.Error("rule aborted", "rule_id", rule.ID, "run_id", run.RunID, "panic", r)
		}
		if !run.Success {
			span.SetStatus(codes.Error, run.Error)
		}
		span.End()
	}()

	if err := validateForRun(rule, ev); err != nil {
		slog.Error("rule aborted", "rule_id", rule.ID, "tenant_id", ev.TenantID, "error", err)
		span.RecordError(err)
		return abort(run, err)
	}

	ec := ir.NewExecutionContext(ev, rule.ID, run.RunID)
	ec.EventID = eventID

	run.State = StateRunning
	run.Results = e.executeActions(ctx, rule, ec)
	run.State = StateCompleted
	run.Success = true

	failed := 0
	for _, r := range run.Results {
		if !r.Success {
			failed++
		}
	}
	slog.Info("rule completed",
		"rule_id", rule.ID,
		"run_id", run.RunID,
		"tenant_id", ev.TenantID,
		"actions", len(run.Results),
		"failed", failed,
	)
	return run
}

// validateForRun rejects rules that must not reach the executor.
func validateForRun(rule ir.Rule, ev ir.TriggerEvent) error {
	if rule.TenantID != ev.TenantID {
		return &RuntimeError{
			Code:    ErrCodeTenantMismatch,
			Message: fmt.Sprintf("rule belongs to tenant %q, event to %q", rule.TenantID, ev.TenantID),
			RuleID:  rule.ID,
		}
	}
	if rule.Trigger == nil {
		return &RuntimeError{Code: ErrCodeMalformedRule, Message: "rule has no trigger", RuleID: rule.ID}
	}
	return nil
}

func abort(run RuleRun, err error) RuleRun {
	run.State = StateAborted
	run.Success = false
	run.Error = err.Error()
	run.Results = nil
	return run
}
