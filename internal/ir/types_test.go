package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTriggerType(t *testing.T) {
	for _, tt := range TriggerTypes {
		got, err := ParseTriggerType(string(tt))
		require.NoError(t, err)
		assert.Equal(t, tt, got)
	}

	_, err := ParseTriggerType("ORDER_PLACED")
	assert.Error(t, err)
}

func TestParseActionType(t *testing.T) {
	got, err := ParseActionType("ADD_TAG")
	require.NoError(t, err)
	assert.Equal(t, ActionAddTag, got)

	_, err = ParseActionType("add_tag")
	assert.Error(t, err, "action types are case sensitive")
}

func TestSortActionsStableOnTies(t *testing.T) {
	actions := []Action{
		{ID: "email", Order: 1},
		{ID: "task", Order: 0},
		{ID: "tag-a", Order: 2},
		{ID: "tag-b", Order: 2},
	}

	sorted := SortActions(actions)

	ids := make([]string, len(sorted))
	for i, a := range sorted {
		ids[i] = a.ID
	}
	assert.Equal(t, []string{"task", "email", "tag-a", "tag-b"}, ids)
	assert.Equal(t, "email", actions[0].ID, "input slice is not reordered")
}

func TestTriggerEventValidate(t *testing.T) {
	assert.NoError(t, TriggerEvent{Type: TriggerContactCreated, TenantID: "T1"}.Validate())
	assert.Error(t, TriggerEvent{Type: "NOPE", TenantID: "T1"}.Validate())
	assert.Error(t, TriggerEvent{Type: TriggerTagAdded}.Validate())
}

func TestTriggerEventWithDerivedKeys(t *testing.T) {
	raw := TriggerEvent{
		Type:     TriggerPipelineStageChanged,
		TenantID: "T1",
		Data:     Object{"opportunityId": String("O1"), "oldStageId": String("s0"), "newStageId": String("s1")},
	}
	got := raw.WithDerivedKeys()
	assert.Equal(t, String("s1"), got.Data["stageId"])
	_, mutated := raw.Data["stageId"]
	assert.False(t, mutated, "input data is not modified")

	explicit := raw
	explicit.Data = Object{"newStageId": String("s1"), "stageId": String("s9")}
	assert.Equal(t, String("s9"), explicit.WithDerivedKeys().Data["stageId"])

	empty := TriggerEvent{Type: TriggerPipelineStageChanged, TenantID: "T1", Data: Object{}}
	assert.Empty(t, empty.WithDerivedKeys().Data)

	other := TriggerEvent{Type: TriggerCardCreated, TenantID: "T1", Data: Object{"newStageId": String("s1")}}
	assert.NotContains(t, other.WithDerivedKeys().Data, "stageId")
}

func TestNewExecutionContext(t *testing.T) {
	ev := TriggerEvent{
		Type:     TriggerContactCreated,
		TenantID: "T1",
		Data: Object{
			"contactId": String("C1"),
			"tenantId":  String("T2"),
			"contact":   Object{"email": String("a@b.com")},
		},
	}

	ec := NewExecutionContext(ev, "rule-1", "run-1")

	assert.Equal(t, "T1", ec.TenantID)
	s, ok := ec.StringAt(KeyTenantID)
	require.True(t, ok)
	assert.Equal(t, "T1", s, "event tenant wins over payload key")

	ec.Data["contact"].(Object)["email"] = String("changed")
	assert.Equal(t, String("a@b.com"), ev.Data["contact"].(Object)["email"], "context owns a copy")
	_, hasTenant := ev.Data["tenantId"].(String)
	assert.True(t, hasTenant)
}

func TestExecutionContextFirstString(t *testing.T) {
	ec := ExecutionContext{Data: Object{
		"contact":      Object{"email": Null{}},
		"contactEmail": String("flat@example.com"),
	}}

	got, ok := ec.FirstString(PathContactEmail, KeyContactEmail)
	require.True(t, ok)
	assert.Equal(t, "flat@example.com", got)

	_, ok = ec.FirstString(PathContactPhone, KeyContactPhone)
	assert.False(t, ok)
}

func TestDecodeActionConfig(t *testing.T) {
	cfg, err := DecodeActionConfig(ActionSendEmail, Object{
		"to":      Null{},
		"subject": String("Welcome"),
		"body":    String("<p>Hi</p>"),
	})
	require.NoError(t, err)
	assert.Equal(t, SendEmailConfig{Subject: "Welcome", Body: "<p>Hi</p>"}, cfg)

	cfg, err = DecodeActionConfig(ActionCreateTask, Object{"title": String("Call"), "assignedTo": String("u1")})
	require.NoError(t, err)
	assert.Equal(t, CreateTaskConfig{Title: "Call", AssignedTo: "u1"}, cfg)

	_, err = DecodeActionConfig(ActionAddTag, Object{"tag": Int(5)})
	assert.Error(t, err)

	_, err = DecodeActionConfig("SEND_FAX", Object{})
	assert.Error(t, err)
}

func TestDecodeActionConfigLenient(t *testing.T) {
	cfg := DecodeActionConfigLenient("SEND_FAX", Object{"to": String("x")})

	raw, ok := cfg.(RawConfig)
	require.True(t, ok)
	assert.Equal(t, ActionType("SEND_FAX"), raw.ActionType())
	assert.Equal(t, Object{"to": String("x")}, raw.Fields)
	assert.Error(t, raw.Err)
}

func TestEncodeActionConfigOmitsEmpty(t *testing.T) {
	obj := EncodeActionConfig(SendSMSConfig{Message: "hi"})
	assert.Equal(t, Object{"message": String("hi")}, obj)

	obj = EncodeActionConfig(UpdateFieldConfig{Field: "status", Value: Int(3)})
	assert.Equal(t, Object{"field": String("status"), "value": Int(3)}, obj)
}

func TestActionJSON(t *testing.T) {
	in := Action{ID: "a1", Type: ActionAddTag, Config: AddTagConfig{Tag: "vip"}, Order: 2}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"a1","type":"ADD_TAG","config":{"tag":"vip"},"order":2}`, string(data))

	var out Action
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestRuleJSONDecodesTypedConfigs(t *testing.T) {
	var r Rule
	err := json.Unmarshal([]byte(`{
		"name": "welcome",
		"is_active": true,
		"trigger": {"type": "CONTACT_CREATED", "conditions": {"source": "web"}},
		"actions": [{"type": "SEND_EMAIL", "config": {"to": null, "subject": "Hi"}, "order": 0}]
	}`), &r)
	require.NoError(t, err)

	require.NotNil(t, r.Trigger)
	assert.Equal(t, Object{"source": String("web")}, r.Trigger.Conditions)
	require.Len(t, r.Actions, 1)
	assert.Equal(t, SendEmailConfig{Subject: "Hi"}, r.Actions[0].Config)
}
