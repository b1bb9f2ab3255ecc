package engine

import (
	"context"
	"log/slog"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
)

// SkipReason explains why a candidate rule was not selected.
type SkipReason string

const (
	SkipConditions     SkipReason = "conditions_not_met"
	SkipInactive       SkipReason = "inactive"
	SkipTenantMismatch SkipReason = "tenant_mismatch"
	SkipTriggerType    SkipReason = "trigger_type_mismatch"
	SkipNoTrigger      SkipReason = "missing_trigger"
)

// Skip records one candidate rule the matcher rejected.
type Skip struct {
	RuleID string     `json:"rule_id"`
	Reason SkipReason `json:"reason"`
}

// match returns the candidate rules of ev's tenant whose trigger conditions
// are satisfied by ev.Data, in store order, plus the rejected candidates.
//
// A store failure is returned as an error; callers treat it as zero matches.
func (e *Engine) match(ctx context.Context, ev ir.TriggerEvent) ([]ir.Rule, []Skip, error) {
	candidates, err := e.rules.ListActiveRules(ctx, ev.TenantID, ev.Type)
	if err != nil {
		return nil, nil, err
	}

	var (
		matched []ir.Rule
		skipped []Skip
	)
	for _, rule := range candidates {
		if reason, ok := selectRule(rule, ev); !ok {
			slog.Debug("rule skipped",
				"rule_id", rule.ID,
				"tenant_id", ev.TenantID,
				"reason", reason,
			)
			skipped = append(skipped, Skip{RuleID: rule.ID, Reason: reason})
			continue
		}
		matched = append(matched, rule)
	}
	return matched, skipped, nil
}

// selectRule re-checks the store's pre-filter and evaluates the trigger
// conditions. The pre-filter is repeated so a misbehaving store can never
// leak another tenant's rule into execution.
func selectRule(rule ir.Rule, ev ir.TriggerEvent) (SkipReason, bool) {
	switch {
	case rule.TenantID != ev.TenantID:
		return SkipTenantMismatch, false
	case !rule.IsActive:
		return SkipInactive, false
	case rule.Trigger == nil:
		return SkipNoTrigger, false
	case rule.Trigger.Type != ev.Type:
		return SkipTriggerType, false
	case !conditionsMatch(rule.Trigger.Conditions, ev.Data):
		return SkipConditions, false
	}
	return "", true
}

// conditionsMatch reports whether every key of conditions is present in data
// with a strictly equal value. Empty conditions match unconditionally; extra
// data keys are ignored. Values of different kinds never match, so malformed
// conditions fail to match instead of erroring.
func conditionsMatch(conditions, data ir.Object) bool {
	for key, want := range conditions {
		got, ok := data[key]
		if !ok {
			return false
		}
		if !ir.Equal(want, got) {
			return false
		}
	}
	return true
}
