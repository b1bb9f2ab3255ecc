package natsx

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcnats "github.com/testcontainers/testcontainers-go/modules/nats"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
)

func TestDecodeEvent(t *testing.T) {
	data := []byte(`{
		"specversion": "1.0",
		"id": "e1",
		"source": "crm",
		"type": "PIPELINE_STAGE_CHANGED",
		"tenantid": "T1",
		"data": {"opportunityId": "O1", "newStageId": "s1", "amount": 1200}
	}`)

	ev, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.Equal(t, ir.TriggerPipelineStageChanged, ev.Type)
	assert.Equal(t, "T1", ev.TenantID)
	assert.Equal(t, ir.Int(1200), ev.Data["amount"])
}

func TestDecodeEventRejects(t *testing.T) {
	tests := map[string]string{
		"bad json":     `{`,
		"unknown type": `{"type":"ORDER_PLACED","tenantid":"T1"}`,
		"no tenant":    `{"type":"TAG_ADDED"}`,
		"data array":   `{"type":"TAG_ADDED","tenantid":"T1","data":[1]}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeEvent([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestEncodeEventRoundTrip(t *testing.T) {
	ev := ir.TriggerEvent{
		Type:     ir.TriggerContactCreated,
		TenantID: "T1",
		Data:     ir.Object{"contactId": ir.String("C1")},
	}

	data, err := EncodeEvent(ev)
	require.NoError(t, err)

	var ce CloudEvent
	require.NoError(t, json.Unmarshal(data, &ce))
	assert.Equal(t, CloudEventsSpecVersion, ce.SpecVersion)
	assert.Equal(t, Source, ce.Source)
	assert.NotEmpty(t, ce.ID)

	got, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.Equal(t, ev, got)
}

func TestConsumerWithServer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping nats container test in short mode")
	}
	ctx := context.Background()

	container, err := tcnats.Run(ctx, "nats:2.10-alpine")
	require.NoError(t, err)
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	nc, err := Connect(url, "bizflow-test")
	require.NoError(t, err)
	defer nc.Close()

	got := make(chan ir.TriggerEvent, 1)
	outcomes := make(chan string, 2)
	c := NewConsumer(nc, "", "", time.Second, func(_ context.Context, ev ir.TriggerEvent) {
		got <- ev
	}, WithOutcomeHook(func(o string) { outcomes <- o }))
	require.NoError(t, c.Start())
	defer c.Drain()

	require.NoError(t, nc.Publish("bizflow.events.tag_added", []byte(`not json`)))
	want := ir.TriggerEvent{Type: ir.TriggerTagAdded, TenantID: "T1", Data: ir.Object{"tag": ir.String("vip")}}
	require.NoError(t, PublishEvent(nc, want))
	require.NoError(t, nc.Flush())

	select {
	case ev := <-got:
		assert.Equal(t, want, ev)
	case <-time.After(5 * time.Second):
		t.Fatal("event not delivered")
	}

	var seen []string
	for len(seen) < 2 {
		select {
		case o := <-outcomes:
			seen = append(seen, o)
		case <-time.After(5 * time.Second):
			t.Fatalf("outcomes not reported, got %v", seen)
		}
	}
	assert.Equal(t, []string{OutcomeDropped, OutcomeHandled}, seen)
}
