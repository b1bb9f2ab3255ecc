package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/natsx"
)

// Publisher is the subset of *nats.Conn used by NATSPublisher.
type Publisher interface {
	PublishMsg(m *nats.Msg) error
}

// EmailCommand is the payload of a bizflow.commands.email message.
type EmailCommand struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// SMSCommand is the payload of a bizflow.commands.sms message.
type SMSCommand struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// NATSPublisher hands sends to a delivery worker by publishing command
// envelopes. The idempotency key travels in the Nats-Msg-Id header so that
// a JetStream stream drops duplicates.
type NATSPublisher struct {
	pub Publisher
}

// NewNATSPublisher creates a publisher over pub.
func NewNATSPublisher(pub Publisher) *NATSPublisher {
	return &NATSPublisher{pub: pub}
}

// SendEmail implements Messenger.
func (p *NATSPublisher) SendEmail(ctx context.Context, to, subject, html string) (SendResult, error) {
	return p.publish(ctx, "email", EmailCommand{To: to, Subject: subject, HTML: html})
}

// SendSMS implements Messenger.
func (p *NATSPublisher) SendSMS(ctx context.Context, to, body string) (SendResult, error) {
	return p.publish(ctx, "sms", SMSCommand{To: to, Body: body})
}

func (p *NATSPublisher) publish(ctx context.Context, channel string, cmd any) (SendResult, error) {
	if err := ctx.Err(); err != nil {
		return SendResult{}, err
	}
	subject, err := natsx.CommandSubject(channel)
	if err != nil {
		return SendResult{}, err
	}
	ce, err := natsx.NewCloudEvent(natsx.Source, "bizflow.command."+channel, "", cmd)
	if err != nil {
		return SendResult{}, fmt.Errorf("encode %s command: %w", channel, err)
	}
	data, err := json.Marshal(ce)
	if err != nil {
		return SendResult{}, fmt.Errorf("encode %s command: %w", channel, err)
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	if key := IdempotencyKey(ctx); key != "" {
		msg.Header.Set(nats.MsgIdHdr, key)
	}
	if err := p.pub.PublishMsg(msg); err != nil {
		return SendResult{}, fmt.Errorf("publish %s: %w", subject, err)
	}
	return SendResult{Success: true, ID: ce.ID}, nil
}
