package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/store"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/testutil"
)

func actionTrace(types ...ir.ActionType) []TraceEvent {
	trace := []TraceEvent{{Type: TraceEventEmitted, Seq: 1}}
	for i, at := range types {
		trace = append(trace, TraceEvent{Type: TraceAction, Seq: int64(i + 2), Action: at, Success: true})
	}
	return trace
}

func TestAssertActionOrder(t *testing.T) {
	trace := actionTrace(ir.ActionCreateTask, ir.ActionUpdateField, ir.ActionSendEmail)

	assert.NoError(t, assertActionOrder(trace, Assertion{Actions: []string{"CREATE_TASK", "SEND_EMAIL"}}))

	err := assertActionOrder(trace, Assertion{Actions: []string{"SEND_EMAIL", "CREATE_TASK"}})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Actual, "should be before")

	err = assertActionOrder(trace, Assertion{Actions: []string{"ADD_TAG"}})
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "missing action: ADD_TAG", ae.Actual)
}

func TestAssertActionCount(t *testing.T) {
	trace := actionTrace(ir.ActionAddTag, ir.ActionAddTag, ir.ActionSendSMS)

	assert.NoError(t, assertActionCount(trace, Assertion{Action: "ADD_TAG", Count: 2}))
	assert.NoError(t, assertActionCount(trace, Assertion{Action: "SEND_EMAIL", Count: 0}))
	assert.Error(t, assertActionCount(trace, Assertion{Action: "SEND_SMS", Count: 2}))
}

func TestAssertSent(t *testing.T) {
	sends := []testutil.Send{
		{Channel: "email", To: "a@b.com", Subject: "Welcome"},
		{Channel: "sms", To: "+1555"},
	}

	assert.NoError(t, assertSent(sends, Assertion{Channel: "sms"}))
	assert.NoError(t, assertSent(sends, Assertion{To: "a@b.com", Subject: "Welcome"}))
	assert.Error(t, assertSent(sends, Assertion{Channel: "sms", To: "a@b.com"}))
	assert.Error(t, assertSent(nil, Assertion{Channel: "email"}))

	assert.NoError(t, assertSentCount(sends, Assertion{Count: 2}))
	assert.Error(t, assertSentCount(sends, Assertion{Count: 1}))
}

func TestAssertRecords(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	_, err = st.CreateTask(ctx, ir.Task{TenantID: "T1", Title: "Call", ContactID: "C1"})
	require.NoError(t, err)
	for _, name := range []string{"vip", "lead"} {
		tag, _, err := st.UpsertTag(ctx, "T1", name)
		require.NoError(t, err)
		_, err = st.AttachTag(ctx, "T1", "C1", tag.ID)
		require.NoError(t, err)
	}

	actx := &AssertionContext{Store: st, Tenant: "T1", Ctx: ctx}

	assert.NoError(t, assertTaskExists(actx, Assertion{Title: "Call"}))
	assert.NoError(t, assertTaskExists(actx, Assertion{Title: "Call", Contact: "C1"}))
	assert.Error(t, assertTaskExists(actx, Assertion{Title: "Call", Contact: "C2"}))
	assert.Error(t, assertTaskExists(actx, Assertion{Title: "Email"}))

	assert.NoError(t, assertContactTags(actx, Assertion{Contact: "C1", Tags: []string{"vip", "lead"}}))
	assert.Error(t, assertContactTags(actx, Assertion{Contact: "C1", Tags: []string{"vip"}}))
	assert.NoError(t, assertContactTags(actx, Assertion{Contact: "C2"}))
}

func TestAssertionErrorListsActions(t *testing.T) {
	trace := actionTrace(ir.ActionSendEmail)
	trace[1].Rule = "welcome"
	trace[1].Success = false
	trace[1].Error = "send email: no recipient"

	err := (&AssertionError{Type: AssertActionCount, Expected: "2", Actual: "1", Trace: trace}).Error()
	assert.Contains(t, err, "Assertion failed: action_count")
	assert.Contains(t, err, "[2] welcome/SEND_EMAIL failed: send email: no recipient")
}
