package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/actions"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/store"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/testutil"
)

// stubRules is a RuleReader returning a fixed candidate list.
type stubRules struct {
	mu    sync.Mutex
	rules []ir.Rule
	err   error
	calls int
}

func (s *stubRules) ListActiveRules(_ context.Context, _ string, _ ir.TriggerType) ([]ir.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.rules, s.err
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// setupTestEngine wires a real SQLite store, the default handlers and a
// recording messenger.
func setupTestEngine(t *testing.T, opts ...Option) (*Engine, *store.Store, *testutil.RecordingMessenger) {
	t.Helper()
	s := setupTestStore(t)
	m := &testutil.RecordingMessenger{}
	return New(s, actions.NewDefaultRegistry(m, s), opts...), s, m
}

func createRule(t *testing.T, s *store.Store, r *ir.Rule) *ir.Rule {
	t.Helper()
	require.NoError(t, s.CreateRule(context.Background(), r))
	return r
}

func rule(tenant string, tt ir.TriggerType, conditions ir.Object, acts ...ir.Action) *ir.Rule {
	return &ir.Rule{
		TenantID: tenant,
		Name:     "test rule",
		IsActive: true,
		Trigger:  &ir.Trigger{Type: tt, Conditions: conditions},
		Actions:  acts,
	}
}

func act(order int, cfg ir.ActionConfig) ir.Action {
	return ir.Action{Type: cfg.ActionType(), Config: cfg, Order: order}
}

// recorder is a handler that records the order in which actions ran.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) handler(name string, err error) actions.Handler {
	return actions.HandlerFunc(func(context.Context, ir.Action, ir.ExecutionContext) (ir.Object, error) {
		r.mu.Lock()
		r.calls = append(r.calls, name)
		r.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return ir.Object{"handler": ir.String(name)}, nil
	})
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// recordingObserver captures engine measurements.
type recordingObserver struct {
	mu      sync.Mutex
	events  int
	matched int
	lookups int
	actions map[bool]int
}

func (o *recordingObserver) EventReceived(ir.TriggerType) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events++
}

func (o *recordingObserver) RulesMatched(_ ir.TriggerType, n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.matched += n
}

func (o *recordingObserver) LookupFailed(ir.TriggerType) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lookups++
}

func (o *recordingObserver) ActionFinished(_ ir.ActionType, success bool, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.actions == nil {
		o.actions = make(map[bool]int)
	}
	o.actions[success]++
}
