package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/messaging"
)

// Send is one call recorded by RecordingMessenger.
type Send struct {
	Channel        string `json:"channel" yaml:"channel"`
	To             string `json:"to" yaml:"to"`
	Subject        string `json:"subject,omitempty" yaml:"subject,omitempty"`
	Body           string `json:"body,omitempty" yaml:"body,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty" yaml:"-"`
}

// RecordingMessenger records every send and answers with sequential message
// IDs. Setting Fail makes every send return success=false with that reason.
type RecordingMessenger struct {
	mu    sync.Mutex
	sends []Send
	Fail  string
}

var _ messaging.Messenger = (*RecordingMessenger)(nil)

// SendEmail implements messaging.Messenger.
func (m *RecordingMessenger) SendEmail(ctx context.Context, to, subject, html string) (messaging.SendResult, error) {
	return m.record(ctx, Send{Channel: "email", To: to, Subject: subject, Body: html})
}

// SendSMS implements messaging.Messenger.
func (m *RecordingMessenger) SendSMS(ctx context.Context, to, body string) (messaging.SendResult, error) {
	return m.record(ctx, Send{Channel: "sms", To: to, Body: body})
}

func (m *RecordingMessenger) record(ctx context.Context, s Send) (messaging.SendResult, error) {
	if err := ctx.Err(); err != nil {
		return messaging.SendResult{}, err
	}
	s.IdempotencyKey = messaging.IdempotencyKey(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends = append(m.sends, s)
	if m.Fail != "" {
		return messaging.SendResult{Success: false, Error: m.Fail}, nil
	}
	return messaging.SendResult{Success: true, ID: fmt.Sprintf("msg-%04d", len(m.sends))}, nil
}

// Sends returns a copy of the recorded sends in call order.
func (m *RecordingMessenger) Sends() []Send {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Send, len(m.sends))
	copy(out, m.sends)
	return out
}

// Reset forgets all recorded sends.
func (m *RecordingMessenger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends = nil
}
