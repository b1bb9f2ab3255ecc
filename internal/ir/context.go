package ir

// Payload keys shared between emitters, trigger conditions and action
// handlers. Each trigger type carries the keys listed next to it:
//
//	CONTACT_CREATED         contactId, contactEmail, contactPhone, contact{email, phone, name}
//	TAG_ADDED               contactId, tagId, tag
//	PIPELINE_STAGE_CHANGED  opportunityId, oldStageId, newStageId, stageId
//	FORM_SUBMITTED          formId, submissionId, contactId, fields{}
//	STAGE_ENTER             pipelineId, cardId, stageId
//	CARD_CREATED            pipelineId, cardId, stageId
const (
	KeyTenantID      = "tenantId"
	KeyContactID     = "contactId"
	KeyContactEmail  = "contactEmail"
	KeyContactPhone  = "contactPhone"
	KeyContact       = "contact"
	KeyTagID         = "tagId"
	KeyTag           = "tag"
	KeyOpportunityID = "opportunityId"
	KeyOldStageID    = "oldStageId"
	KeyNewStageID    = "newStageId"
	KeyStageID       = "stageId"
	KeyFormID        = "formId"
	KeySubmissionID  = "submissionId"
	KeyFields        = "fields"
	KeyPipelineID    = "pipelineId"
	KeyCardID        = "cardId"

	PathContactEmail = "contact.email"
	PathContactPhone = "contact.phone"
)

// PayloadKeys lists the top-level data keys emitters supply for each
// trigger type.
var PayloadKeys = map[TriggerType][]string{
	TriggerContactCreated:       {KeyContactID, KeyContactEmail, KeyContactPhone, KeyContact},
	TriggerTagAdded:             {KeyContactID, KeyTagID, KeyTag},
	TriggerPipelineStageChanged: {KeyOpportunityID, KeyOldStageID, KeyNewStageID, KeyStageID},
	TriggerFormSubmitted:        {KeyFormID, KeySubmissionID, KeyContactID, KeyFields},
	TriggerStageEnter:           {KeyPipelineID, KeyCardID, KeyStageID},
	TriggerCardCreated:          {KeyPipelineID, KeyCardID, KeyStageID},
}

// ExecutionContext is the data bag of one rule run. It is built once from
// the event and each action receives its own Clone, so later actions do not
// observe writes made by earlier ones.
type ExecutionContext struct {
	TenantID string
	RuleID   string
	RunID    string
	// EventID is the fingerprint of the triggering event; with the rule and
	// action IDs it derives the effect idempotency key.
	EventID string
	Data    Object
}

// NewExecutionContext builds the context for one rule run as
// {tenantId} ∪ event.data. The event data is deep-copied; the event's
// tenant always wins over a tenantId key in the payload.
func NewExecutionContext(ev TriggerEvent, ruleID, runID string) ExecutionContext {
	data := ev.Data.Clone()
	data[KeyTenantID] = String(ev.TenantID)
	return ExecutionContext{
		TenantID: ev.TenantID,
		RuleID:   ruleID,
		RunID:    runID,
		Data:     data,
	}
}

// Clone returns a copy whose Data is deep-copied.
func (c ExecutionContext) Clone() ExecutionContext {
	c.Data = c.Data.Clone()
	return c
}

// Lookup reads a dotted path from the context data.
func (c ExecutionContext) Lookup(path string) (Value, bool) {
	return c.Data.Lookup(path)
}

// StringAt returns the non-empty string stored at path.
func (c ExecutionContext) StringAt(path string) (string, bool) {
	return c.Data.StringAt(path)
}

// FirstString returns the first non-empty string found among paths.
func (c ExecutionContext) FirstString(paths ...string) (string, bool) {
	for _, p := range paths {
		if s, ok := c.StringAt(p); ok {
			return s, true
		}
	}
	return "", false
}
