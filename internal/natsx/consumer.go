package natsx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
)

// EventHandler receives each decoded trigger event.
type EventHandler func(ctx context.Context, ev ir.TriggerEvent)

// Connect opens a named NATS connection that reconnects indefinitely.
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return nc, nil
}

// Consumer feeds trigger events published on NATS into a handler. Each
// message is handled under its own timeout; malformed messages are logged
// and dropped.
type Consumer struct {
	nc      *nats.Conn
	subject string
	queue   string
	timeout time.Duration
	handler EventHandler
	outcome func(outcome string)
	sub     *nats.Subscription
}

// Message outcomes reported to the hook installed by WithOutcomeHook.
const (
	OutcomeHandled = "handled"
	OutcomeDropped = "dropped"
)

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithOutcomeHook calls fn once per message with OutcomeHandled or
// OutcomeDropped.
func WithOutcomeHook(fn func(outcome string)) ConsumerOption {
	return func(c *Consumer) { c.outcome = fn }
}

// NewConsumer creates a consumer on subject. A non-empty queue joins a
// queue group so that several instances share the load.
func NewConsumer(nc *nats.Conn, subject, queue string, timeout time.Duration, h EventHandler, opts ...ConsumerOption) *Consumer {
	if subject == "" {
		subject = EventsWildcard
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Consumer{nc: nc, subject: subject, queue: queue, timeout: timeout, handler: h, outcome: func(string) {}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start subscribes. Messages are delivered on the subscription goroutine,
// one at a time.
func (c *Consumer) Start() error {
	var (
		sub *nats.Subscription
		err error
	)
	if c.queue != "" {
		sub, err = c.nc.QueueSubscribe(c.subject, c.queue, c.handle)
	} else {
		sub, err = c.nc.Subscribe(c.subject, c.handle)
	}
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.subject, err)
	}
	c.sub = sub
	slog.Info("consuming trigger events", "subject", c.subject, "queue", c.queue)
	return nil
}

// Drain stops delivery after in-flight messages are handled.
func (c *Consumer) Drain() error {
	if c.sub == nil {
		return nil
	}
	return c.sub.Drain()
}

func (c *Consumer) handle(msg *nats.Msg) {
	ev, err := DecodeEvent(msg.Data)
	if err != nil {
		slog.Warn("dropping malformed event", "subject", msg.Subject, "error", err)
		c.outcome(OutcomeDropped)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	c.handler(ctx, ev)
	c.outcome(OutcomeHandled)
}

// DecodeEvent parses a CloudEvent whose type is a trigger type and whose
// tenantid extension names the tenant.
func DecodeEvent(data []byte) (ir.TriggerEvent, error) {
	var ce CloudEvent
	if err := json.Unmarshal(data, &ce); err != nil {
		return ir.TriggerEvent{}, fmt.Errorf("decode envelope: %w", err)
	}
	t, err := ir.ParseTriggerType(ce.Type)
	if err != nil {
		return ir.TriggerEvent{}, err
	}
	if ce.TenantID == "" {
		return ir.TriggerEvent{}, fmt.Errorf("event %s has no tenantid", ce.ID)
	}
	payload, err := ir.DecodeObject(ce.Data)
	if err != nil {
		return ir.TriggerEvent{}, fmt.Errorf("decode data: %w", err)
	}
	return ir.TriggerEvent{Type: t, TenantID: ce.TenantID, Data: payload}, nil
}

// EncodeEvent wraps a trigger event in a CloudEvent envelope.
func EncodeEvent(ev ir.TriggerEvent) ([]byte, error) {
	data := ev.Data
	if data == nil {
		data = ir.Object{}
	}
	ce, err := NewCloudEvent(Source, string(ev.Type), ev.TenantID, data)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return json.Marshal(ce)
}

// PublishEvent publishes ev on its event subject.
func PublishEvent(nc *nats.Conn, ev ir.TriggerEvent) error {
	subject, err := EventSubject(string(ev.Type))
	if err != nil {
		return err
	}
	data, err := EncodeEvent(ev)
	if err != nil {
		return err
	}
	return nc.Publish(subject, data)
}
