package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
)

func TestCollector_Observer(t *testing.T) {
	c := NewCollector()

	c.EventReceived(ir.TriggerContactCreated)
	c.EventReceived(ir.TriggerContactCreated)
	c.RulesMatched(ir.TriggerContactCreated, 3)
	c.LookupFailed(ir.TriggerTagAdded)
	c.ActionFinished(ir.ActionSendEmail, true, 20*time.Millisecond)
	c.ActionFinished(ir.ActionSendEmail, false, time.Millisecond)
	c.ActionFinished(ir.ActionAddTag, true, time.Millisecond)
	c.RateLimited("/api/v1/events")
	c.MessageConsumed("dropped")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.events.WithLabelValues("CONTACT_CREATED")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.rulesMatched.WithLabelValues("CONTACT_CREATED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.lookupFailures.WithLabelValues("TAG_ADDED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.actions.WithLabelValues("SEND_EMAIL", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.actions.WithLabelValues("SEND_EMAIL", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rateLimited.WithLabelValues("/api/v1/events")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.consumedMessage.WithLabelValues("dropped")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.actionDuration))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	c.EventReceived(ir.TriggerFormSubmitted)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `bizflow_events_total{type="FORM_SUBMITTED"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
