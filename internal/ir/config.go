package ir

import (
	"encoding/json"
	"fmt"
)

// ActionConfig is the typed payload of one action. Each ActionType has a
// dedicated variant; RawConfig carries anything that failed to decode.
type ActionConfig interface {
	ActionType() ActionType
}

// SendEmailConfig configures SEND_EMAIL. An empty To falls back to the
// contact address found in the execution context.
type SendEmailConfig struct {
	To      string `json:"to,omitempty"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (SendEmailConfig) ActionType() ActionType { return ActionSendEmail }

// SendSMSConfig configures SEND_SMS. An empty To falls back to the contact
// phone found in the execution context.
type SendSMSConfig struct {
	To      string `json:"to,omitempty"`
	Message string `json:"message"`
}

func (SendSMSConfig) ActionType() ActionType { return ActionSendSMS }

// CreateTaskConfig configures CREATE_TASK.
type CreateTaskConfig struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	AssignedTo  string `json:"assignedTo,omitempty"`
}

func (CreateTaskConfig) ActionType() ActionType { return ActionCreateTask }

// AddTagConfig configures ADD_TAG.
type AddTagConfig struct {
	Tag string `json:"tag"`
}

func (AddTagConfig) ActionType() ActionType { return ActionAddTag }

// UpdateFieldConfig configures UPDATE_FIELD. The action is reserved and
// performs no mutation.
type UpdateFieldConfig struct {
	Field string `json:"field,omitempty"`
	Value Value  `json:"value,omitempty"`
}

func (UpdateFieldConfig) ActionType() ActionType { return ActionUpdateField }

// RawConfig holds a stored config that could not be decoded, either
// because the action type is unknown or because a field had the wrong kind.
type RawConfig struct {
	Type   ActionType
	Fields Object
	Err    error
}

func (c RawConfig) ActionType() ActionType { return c.Type }

// DecodeActionConfig converts a stored config map into the typed variant for
// t. Missing and null fields decode as empty; fields of the wrong kind are
// an error.
func DecodeActionConfig(t ActionType, raw Object) (ActionConfig, error) {
	if raw == nil {
		raw = Object{}
	}
	d := configDecoder{raw: raw}
	var cfg ActionConfig
	switch t {
	case ActionSendEmail:
		cfg = SendEmailConfig{
			To:      d.str("to"),
			Subject: d.str("subject"),
			Body:    d.str("body"),
		}
	case ActionSendSMS:
		cfg = SendSMSConfig{
			To:      d.str("to"),
			Message: d.str("message"),
		}
	case ActionCreateTask:
		cfg = CreateTaskConfig{
			Title:       d.str("title"),
			Description: d.str("description"),
			AssignedTo:  d.str("assignedTo"),
		}
	case ActionAddTag:
		cfg = AddTagConfig{Tag: d.str("tag")}
	case ActionUpdateField:
		c := UpdateFieldConfig{Field: d.str("field")}
		if v, ok := raw["value"]; ok {
			c.Value = v
		}
		cfg = c
	default:
		return nil, fmt.Errorf("unknown action type %q", t)
	}
	if d.err != nil {
		return nil, fmt.Errorf("%s config: %w", t, d.err)
	}
	return cfg, nil
}

// DecodeActionConfigLenient is DecodeActionConfig for the read edge: a
// failure is kept as a RawConfig so the rule still loads and the executor
// can report the broken action.
func DecodeActionConfigLenient(t ActionType, raw Object) ActionConfig {
	cfg, err := DecodeActionConfig(t, raw)
	if err != nil {
		return RawConfig{Type: t, Fields: raw.Clone(), Err: err}
	}
	return cfg
}

type configDecoder struct {
	raw Object
	err error
}

func (d *configDecoder) str(key string) string {
	v, ok := d.raw[key]
	if !ok {
		return ""
	}
	switch val := v.(type) {
	case Null:
		return ""
	case String:
		return string(val)
	default:
		if d.err == nil {
			d.err = fmt.Errorf("field %q must be a string, got %T", key, v)
		}
		return ""
	}
}

// EncodeActionConfig converts a typed config into the map stored at the
// persistence edge. Empty optional fields are omitted.
func EncodeActionConfig(cfg ActionConfig) Object {
	out := Object{}
	put := func(key, val string) {
		if val != "" {
			out[key] = String(val)
		}
	}
	switch c := cfg.(type) {
	case SendEmailConfig:
		put("to", c.To)
		put("subject", c.Subject)
		put("body", c.Body)
	case SendSMSConfig:
		put("to", c.To)
		put("message", c.Message)
	case CreateTaskConfig:
		put("title", c.Title)
		put("description", c.Description)
		put("assignedTo", c.AssignedTo)
	case AddTagConfig:
		put("tag", c.Tag)
	case UpdateFieldConfig:
		put("field", c.Field)
		if c.Value != nil {
			out["value"] = c.Value
		}
	case RawConfig:
		return c.Fields.Clone()
	}
	return out
}

type actionJSON struct {
	ID     string     `json:"id"`
	Type   ActionType `json:"type"`
	Config Object     `json:"config"`
	Order  int        `json:"order"`
}

// MarshalJSON encodes the config through EncodeActionConfig so the wire
// shape matches what is stored.
func (a Action) MarshalJSON() ([]byte, error) {
	cfg := Object{}
	if a.Config != nil {
		cfg = EncodeActionConfig(a.Config)
	}
	return json.Marshal(actionJSON{ID: a.ID, Type: a.Type, Config: cfg, Order: a.Order})
}

// UnmarshalJSON decodes the config map into its typed variant. Unknown
// types and malformed fields are kept as RawConfig.
func (a *Action) UnmarshalJSON(data []byte) error {
	var raw actionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.ID = raw.ID
	a.Type = raw.Type
	a.Order = raw.Order
	a.Config = DecodeActionConfigLenient(raw.Type, raw.Config)
	return nil
}
