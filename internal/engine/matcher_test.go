package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/actions"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
)

func TestConditionsMatch(t *testing.T) {
	tests := []struct {
		name       string
		conditions ir.Object
		data       ir.Object
		want       bool
	}{
		{"nil conditions match anything", nil, ir.Object{"a": ir.String("x")}, true},
		{"empty conditions match empty data", ir.Object{}, ir.Object{}, true},
		{"equal value", ir.Object{"stageId": ir.String("s1")}, ir.Object{"stageId": ir.String("s1")}, true},
		{"extra data keys ignored", ir.Object{"stageId": ir.String("s1")},
			ir.Object{"stageId": ir.String("s1"), "extra": ir.String("x")}, true},
		{"missing key rejects", ir.Object{"stageId": ir.String("s1")}, ir.Object{}, false},
		{"different value rejects", ir.Object{"stageId": ir.String("s1")}, ir.Object{"stageId": ir.String("s2")}, false},
		{"kind mismatch rejects", ir.Object{"count": ir.Int(1)}, ir.Object{"count": ir.String("1")}, false},
		{"number does not match its string", ir.Object{"score": ir.Number("1.5")}, ir.Object{"score": ir.String("1.5")}, false},
		{"number matches number", ir.Object{"score": ir.Number("1.5")}, ir.Object{"score": ir.Number("1.5")}, true},
		{"null requires null", ir.Object{"owner": ir.Null{}}, ir.Object{"owner": ir.Null{}}, true},
		{"object is not a superset match", ir.Object{"contact": ir.Object{"email": ir.String("a@b.com")}},
			ir.Object{"contact": ir.Object{"email": ir.String("a@b.com"), "name": ir.String("A")}}, false},
		{"object equal", ir.Object{"contact": ir.Object{"email": ir.String("a@b.com")}},
			ir.Object{"contact": ir.Object{"email": ir.String("a@b.com")}}, true},
		{"every key must match", ir.Object{"a": ir.String("1"), "b": ir.String("2")},
			ir.Object{"a": ir.String("1"), "b": ir.String("3")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, conditionsMatch(tt.conditions, tt.data))
		})
	}
}

func TestSelectRule(t *testing.T) {
	ev := ir.TriggerEvent{Type: ir.TriggerPipelineStageChanged, TenantID: "T1",
		Data: ir.Object{"stageId": ir.String("s1")}}
	base := func() ir.Rule {
		return ir.Rule{ID: "r1", TenantID: "T1", IsActive: true,
			Trigger: &ir.Trigger{Type: ir.TriggerPipelineStageChanged, Conditions: ir.Object{"stageId": ir.String("s1")}}}
	}

	reason, ok := selectRule(base(), ev)
	assert.True(t, ok)
	assert.Empty(t, reason)

	foreign := base()
	foreign.TenantID = "T2"
	reason, ok = selectRule(foreign, ev)
	assert.False(t, ok)
	assert.Equal(t, SkipTenantMismatch, reason)

	inactive := base()
	inactive.IsActive = false
	reason, _ = selectRule(inactive, ev)
	assert.Equal(t, SkipInactive, reason)

	noTrigger := base()
	noTrigger.Trigger = nil
	reason, _ = selectRule(noTrigger, ev)
	assert.Equal(t, SkipNoTrigger, reason)

	otherType := base()
	otherType.Trigger.Type = ir.TriggerContactCreated
	reason, _ = selectRule(otherType, ev)
	assert.Equal(t, SkipTriggerType, reason)

	otherStage := base()
	otherStage.Trigger.Conditions = ir.Object{"stageId": ir.String("s2")}
	reason, _ = selectRule(otherStage, ev)
	assert.Equal(t, SkipConditions, reason)
}

func TestMatch_RejectsLeakedRules(t *testing.T) {
	reader := &stubRules{rules: []ir.Rule{
		{ID: "mine", TenantID: "T1", IsActive: true, Trigger: &ir.Trigger{Type: ir.TriggerContactCreated}},
		{ID: "theirs", TenantID: "T2", IsActive: true, Trigger: &ir.Trigger{Type: ir.TriggerContactCreated}},
		{ID: "off", TenantID: "T1", IsActive: false, Trigger: &ir.Trigger{Type: ir.TriggerContactCreated}},
	}}
	e := New(reader, actions.NewRegistry())

	matched, skipped, err := e.match(context.Background(),
		ir.TriggerEvent{Type: ir.TriggerContactCreated, TenantID: "T1"})
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "mine", matched[0].ID)
	assert.Equal(t, []Skip{
		{RuleID: "theirs", Reason: SkipTenantMismatch},
		{RuleID: "off", Reason: SkipInactive},
	}, skipped)
}

func TestMatch_StoreError(t *testing.T) {
	e := New(&stubRules{err: assert.AnError}, actions.NewRegistry())
	matched, _, err := e.match(context.Background(),
		ir.TriggerEvent{Type: ir.TriggerContactCreated, TenantID: "T1"})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, matched)
}
