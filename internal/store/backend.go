package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
)

// ErrNotFound is returned when a rule or tag does not exist for the tenant.
var ErrNotFound = errors.New("not found")

// ErrInvalidRule wraps structural problems detected before a rule is written.
var ErrInvalidRule = errors.New("invalid rule")

// RuleReader is the read side used by the matcher.
type RuleReader interface {
	// ListActiveRules returns the active rules of tenantID whose trigger has
	// type t, hydrated with trigger and ordered actions. Zero rows is an
	// empty slice.
	ListActiveRules(ctx context.Context, tenantID string, t ir.TriggerType) ([]ir.Rule, error)
}

// Rules is the rule management contract.
type Rules interface {
	RuleReader
	CreateRule(ctx context.Context, r *ir.Rule) error
	ReplaceRule(ctx context.Context, r *ir.Rule) error
	SetActive(ctx context.Context, tenantID, ruleID string, active bool) error
	DeleteRule(ctx context.Context, tenantID, ruleID string) error
	GetRule(ctx context.Context, tenantID, ruleID string) (ir.Rule, error)
	ListRules(ctx context.Context, tenantID string) ([]ir.Rule, error)
}

// Records is the tenant-scoped record mutation collaborator used by the
// CREATE_TASK and ADD_TAG actions.
type Records interface {
	CreateTask(ctx context.Context, task ir.Task) (ir.Task, error)
	// UpsertTag returns the tag named name for tenantID, creating it if
	// absent. created reports whether this call inserted it.
	UpsertTag(ctx context.Context, tenantID, name string) (tag ir.Tag, created bool, err error)
	// AttachTag links tagID to contactID. attached is false when the link
	// already existed.
	AttachTag(ctx context.Context, tenantID, contactID, tagID string) (attached bool, err error)
	ListContactTags(ctx context.Context, tenantID, contactID string) ([]ir.Tag, error)
	ListTasks(ctx context.Context, tenantID string) ([]ir.Task, error)
}

// Backend is implemented by the SQLite and PostgreSQL stores.
type Backend interface {
	Rules
	Records
	Ping(ctx context.Context) error
	Close() error
}

// PrepareRule validates r for writing and fills in missing identifiers and
// timestamps. Action positions must be unique within the rule.
func PrepareRule(r *ir.Rule, now time.Time, newID func() string) error {
	if r == nil {
		return fmt.Errorf("%w: nil rule", ErrInvalidRule)
	}
	if r.TenantID == "" {
		return fmt.Errorf("%w: tenant is required", ErrInvalidRule)
	}
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	if r.Trigger == nil {
		return fmt.Errorf("%w: trigger is required", ErrInvalidRule)
	}
	if !r.Trigger.Type.Valid() {
		return fmt.Errorf("%w: unknown trigger type %q", ErrInvalidRule, r.Trigger.Type)
	}

	seen := make(map[int]bool, len(r.Actions))
	for i := range r.Actions {
		a := &r.Actions[i]
		if seen[a.Order] {
			return fmt.Errorf("%w: duplicate action order %d", ErrInvalidRule, a.Order)
		}
		seen[a.Order] = true
		if a.ID == "" {
			a.ID = newID()
		}
		if a.Config == nil {
			a.Config = ir.DecodeActionConfigLenient(a.Type, nil)
		}
	}

	if r.ID == "" {
		r.ID = newID()
	}
	if r.Trigger.ID == "" {
		r.Trigger.ID = newID()
	}
	if r.Trigger.Conditions == nil {
		r.Trigger.Conditions = ir.Object{}
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	return nil
}
