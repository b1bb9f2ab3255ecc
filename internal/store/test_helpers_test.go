package store

import (
	"path/filepath"
	"testing"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// newTestRule builds a minimal active rule for tenant with the given trigger
// and actions.
func newTestRule(tenant, name string, tt ir.TriggerType, conditions ir.Object, actions ...ir.Action) *ir.Rule {
	return &ir.Rule{
		TenantID: tenant,
		Name:     name,
		IsActive: true,
		Trigger:  &ir.Trigger{Type: tt, Conditions: conditions},
		Actions:  actions,
	}
}

func emailAction(order int, subject string) ir.Action {
	return ir.Action{
		Type:   ir.ActionSendEmail,
		Config: ir.SendEmailConfig{Subject: subject, Body: "body"},
		Order:  order,
	}
}

func taskAction(order int, title string) ir.Action {
	return ir.Action{
		Type:   ir.ActionCreateTask,
		Config: ir.CreateTaskConfig{Title: title},
		Order:  order,
	}
}
