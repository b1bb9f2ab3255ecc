package ir

import (
	"fmt"
	"slices"
	"time"
)

// TriggerType classifies a domain occurrence. The set is closed.
type TriggerType string

const (
	TriggerContactCreated       TriggerType = "CONTACT_CREATED"
	TriggerTagAdded             TriggerType = "TAG_ADDED"
	TriggerPipelineStageChanged TriggerType = "PIPELINE_STAGE_CHANGED"
	TriggerFormSubmitted        TriggerType = "FORM_SUBMITTED"
	TriggerStageEnter           TriggerType = "STAGE_ENTER"
	TriggerCardCreated          TriggerType = "CARD_CREATED"
)

// TriggerTypes lists every valid trigger type in declaration order.
var TriggerTypes = []TriggerType{
	TriggerContactCreated,
	TriggerTagAdded,
	TriggerPipelineStageChanged,
	TriggerFormSubmitted,
	TriggerStageEnter,
	TriggerCardCreated,
}

// Valid reports whether t is one of the known trigger types.
func (t TriggerType) Valid() bool {
	return slices.Contains(TriggerTypes, t)
}

// ParseTriggerType returns the trigger type named by s.
func ParseTriggerType(s string) (TriggerType, error) {
	t := TriggerType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown trigger type %q", s)
	}
	return t, nil
}

// ActionType names one kind of side effect. The set is closed.
type ActionType string

const (
	ActionSendEmail   ActionType = "SEND_EMAIL"
	ActionSendSMS     ActionType = "SEND_SMS"
	ActionCreateTask  ActionType = "CREATE_TASK"
	ActionAddTag      ActionType = "ADD_TAG"
	ActionUpdateField ActionType = "UPDATE_FIELD"
)

// ActionTypes lists every valid action type in declaration order.
var ActionTypes = []ActionType{
	ActionSendEmail,
	ActionSendSMS,
	ActionCreateTask,
	ActionAddTag,
	ActionUpdateField,
}

// Valid reports whether t is one of the known action types.
func (t ActionType) Valid() bool {
	return slices.Contains(ActionTypes, t)
}

// ParseActionType returns the action type named by s.
func ParseActionType(s string) (ActionType, error) {
	t := ActionType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown action type %q", s)
	}
	return t, nil
}

// Rule is a tenant-owned automation definition: one trigger and an
// ordered list of actions.
type Rule struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	Trigger   *Trigger  `json:"trigger"`
	Actions   []Action  `json:"actions"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Trigger selects the events a rule reacts to. Conditions are equality
// constraints against the event data; empty conditions always match.
type Trigger struct {
	ID         string      `json:"id"`
	Type       TriggerType `json:"type"`
	Conditions Object      `json:"conditions"`
}

// Action is one declared side effect of a rule.
type Action struct {
	ID     string       `json:"id"`
	Type   ActionType   `json:"type"`
	Config ActionConfig `json:"config"`
	Order  int          `json:"order"`
}

// SortActions orders actions by Order ascending. Ties keep their
// insertion order.
func SortActions(actions []Action) []Action {
	out := slices.Clone(actions)
	slices.SortStableFunc(out, func(a, b Action) int {
		return a.Order - b.Order
	})
	return out
}

// TriggerEvent is the normalized, ephemeral representation of a domain
// occurrence handed to the engine by an emitter.
type TriggerEvent struct {
	Type     TriggerType `json:"type"`
	TenantID string      `json:"tenant_id"`
	Data     Object      `json:"data"`
}

// Validate checks the event carries a known type and a tenant.
func (e TriggerEvent) Validate() error {
	if !e.Type.Valid() {
		return fmt.Errorf("unknown trigger type %q", e.Type)
	}
	if e.TenantID == "" {
		return fmt.Errorf("event %s has no tenant", e.Type)
	}
	return nil
}

// WithDerivedKeys returns a copy of the event whose data also carries the
// keys emitters derive from others. A PIPELINE_STAGE_CHANGED payload without
// stageId gets stageId = newStageId, so stage rules written against stageId
// match raw events that only name the new stage. Existing keys are kept.
func (e TriggerEvent) WithDerivedKeys() TriggerEvent {
	if e.Type != TriggerPipelineStageChanged {
		return e
	}
	if _, ok := e.Data[KeyStageID]; ok {
		return e
	}
	next, ok := e.Data[KeyNewStageID]
	if !ok {
		return e
	}
	e.Data = e.Data.Clone()
	e.Data[KeyStageID] = cloneValue(next)
	return e
}

// Task is a to-do record created by the CREATE_TASK action.
type Task struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	AssignedTo  string    `json:"assigned_to,omitempty"`
	ContactID   string    `json:"contact_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Tag is a tenant-scoped label. Names are unique per tenant.
type Tag struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
}
