// Package emit holds the helpers host mutation handlers call after their
// write commits. Each helper builds the payload for one trigger type and
// hands it to the engine. Nothing an automation does can fail the caller:
// engine problems are logged and reported in the returned summary only.
package emit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/engine"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
)

// Sink processes trigger events. *engine.Engine implements it.
type Sink interface {
	Emit(ctx context.Context, ev ir.TriggerEvent) engine.Summary
}

// Emitter builds trigger events from domain changes.
type Emitter struct {
	sink Sink
}

// New returns an Emitter forwarding to sink.
func New(sink Sink) *Emitter {
	return &Emitter{sink: sink}
}

// Contact is the slice of a contact record rules can see.
type Contact struct {
	ID    string
	Email string
	Phone string
	Name  string
}

// ContactCreated emits CONTACT_CREATED.
func (e *Emitter) ContactCreated(ctx context.Context, tenantID string, c Contact) engine.Summary {
	contact := ir.Object{}
	putString(contact, "email", c.Email)
	putString(contact, "phone", c.Phone)
	putString(contact, "name", c.Name)

	data := ir.Object{ir.KeyContact: contact}
	putString(data, ir.KeyContactID, c.ID)
	putString(data, ir.KeyContactEmail, c.Email)
	putString(data, ir.KeyContactPhone, c.Phone)
	return e.Emit(ctx, ir.TriggerContactCreated, tenantID, data)
}

// TagAdded emits TAG_ADDED.
func (e *Emitter) TagAdded(ctx context.Context, tenantID, contactID, tagID, tag string) engine.Summary {
	data := ir.Object{}
	putString(data, ir.KeyContactID, contactID)
	putString(data, ir.KeyTagID, tagID)
	putString(data, ir.KeyTag, tag)
	return e.Emit(ctx, ir.TriggerTagAdded, tenantID, data)
}

// StageChanged emits PIPELINE_STAGE_CHANGED. stageId carries the new stage
// so rules can condition on the stage entered.
func (e *Emitter) StageChanged(ctx context.Context, tenantID, opportunityID, oldStageID, newStageID string) engine.Summary {
	data := ir.Object{}
	putString(data, ir.KeyOpportunityID, opportunityID)
	putString(data, ir.KeyOldStageID, oldStageID)
	putString(data, ir.KeyNewStageID, newStageID)
	putString(data, ir.KeyStageID, newStageID)
	return e.Emit(ctx, ir.TriggerPipelineStageChanged, tenantID, data)
}

// FormSubmitted emits FORM_SUBMITTED. Field values that cannot be
// represented are dropped with a warning.
func (e *Emitter) FormSubmitted(ctx context.Context, tenantID, formID, submissionID, contactID string, fields map[string]any) engine.Summary {
	fieldObj := make(ir.Object, len(fields))
	for k, v := range fields {
		val, err := ir.FromAny(v)
		if err != nil {
			slog.Warn("form field dropped", "form_id", formID, "field", k, "error", err)
			continue
		}
		fieldObj[k] = val
	}

	data := ir.Object{ir.KeyFields: fieldObj}
	putString(data, ir.KeyFormID, formID)
	putString(data, ir.KeySubmissionID, submissionID)
	putString(data, ir.KeyContactID, contactID)
	return e.Emit(ctx, ir.TriggerFormSubmitted, tenantID, data)
}

// StageEntered emits STAGE_ENTER for a pipeline card moved into stageID.
func (e *Emitter) StageEntered(ctx context.Context, tenantID, pipelineID, cardID, stageID string) engine.Summary {
	return e.Emit(ctx, ir.TriggerStageEnter, tenantID, cardData(pipelineID, cardID, stageID))
}

// CardCreated emits CARD_CREATED.
func (e *Emitter) CardCreated(ctx context.Context, tenantID, pipelineID, cardID, stageID string) engine.Summary {
	return e.Emit(ctx, ir.TriggerCardCreated, tenantID, cardData(pipelineID, cardID, stageID))
}

// Emit forwards an arbitrary event. A panicking sink is recovered.
func (e *Emitter) Emit(ctx context.Context, t ir.TriggerType, tenantID string, data ir.Object) (summary engine.Summary) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("automation emit panicked", "event_type", t, "tenant_id", tenantID, "panic", r)
			summary = engine.Summary{EventType: t, TenantID: tenantID, Error: fmt.Sprintf("panic: %v", r)}
		}
	}()

	summary = e.sink.Emit(ctx, ir.TriggerEvent{Type: t, TenantID: tenantID, Data: data})
	if summary.Error != "" {
		slog.Warn("automation emit failed",
			"event_type", t,
			"tenant_id", tenantID,
			"error", summary.Error,
		)
	}
	for _, run := range summary.Runs {
		if !run.Success {
			slog.Warn("automation rule aborted", "rule_id", run.RuleID, "error", run.Error)
		}
	}
	return summary
}

func cardData(pipelineID, cardID, stageID string) ir.Object {
	data := ir.Object{}
	putString(data, ir.KeyPipelineID, pipelineID)
	putString(data, ir.KeyCardID, cardID)
	putString(data, ir.KeyStageID, stageID)
	return data
}

func putString(o ir.Object, key, val string) {
	if val != "" {
		o[key] = ir.String(val)
	}
}
