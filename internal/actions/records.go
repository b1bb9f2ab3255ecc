package actions

import (
	"context"
	"fmt"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/store"
)

// CreateTask handles CREATE_TASK: one task for the context tenant, linked
// to contactId when the context has one.
type CreateTask struct {
	Records store.Records
}

// Execute implements Handler.
func (h *CreateTask) Execute(ctx context.Context, action ir.Action, ec ir.ExecutionContext) (ir.Object, error) {
	cfg, err := configAs[ir.CreateTaskConfig](action)
	if err != nil {
		return nil, err
	}
	if cfg.Title == "" {
		return nil, fmt.Errorf("create task: %w: title", ErrMissingField)
	}
	contactID, _ := ec.StringAt(ir.KeyContactID)

	task, err := h.Records.CreateTask(ctx, ir.Task{
		TenantID:    ec.TenantID,
		Title:       cfg.Title,
		Description: cfg.Description,
		AssignedTo:  cfg.AssignedTo,
		ContactID:   contactID,
	})
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return ir.Object{"task_id": ir.String(task.ID)}, nil
}

// AddTag handles ADD_TAG: get-or-create the tenant's tag, then attach it to
// the context contact. Both steps are idempotent.
type AddTag struct {
	Records store.Records
}

// Execute implements Handler.
func (h *AddTag) Execute(ctx context.Context, action ir.Action, ec ir.ExecutionContext) (ir.Object, error) {
	cfg, err := configAs[ir.AddTagConfig](action)
	if err != nil {
		return nil, err
	}
	contactID, ok := ec.StringAt(ir.KeyContactID)
	if !ok {
		return nil, fmt.Errorf("add tag: %w: contactId", ErrMissingField)
	}
	if cfg.Tag == "" {
		return nil, fmt.Errorf("add tag: %w: tag", ErrMissingField)
	}

	tag, created, err := h.Records.UpsertTag(ctx, ec.TenantID, cfg.Tag)
	if err != nil {
		return nil, fmt.Errorf("add tag: %w", err)
	}
	attached, err := h.Records.AttachTag(ctx, ec.TenantID, contactID, tag.ID)
	if err != nil {
		return nil, fmt.Errorf("add tag: %w", err)
	}
	return ir.Object{
		"tag_id":   ir.String(tag.ID),
		"tag":      ir.String(tag.Name),
		"created":  ir.Bool(created),
		"attached": ir.Bool(attached),
	}, nil
}

// UpdateField handles UPDATE_FIELD. Field updates need a validated
// allow-list that does not exist yet, so the handler reports a no-op.
type UpdateField struct{}

// Execute implements Handler.
func (UpdateField) Execute(_ context.Context, action ir.Action, _ ir.ExecutionContext) (ir.Object, error) {
	cfg, err := configAs[ir.UpdateFieldConfig](action)
	if err != nil {
		return nil, err
	}
	out := ir.Object{"noop": ir.Bool(true)}
	if cfg.Field != "" {
		out["field"] = ir.String(cfg.Field)
	}
	return out, nil
}
