package messaging

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Simulated is the Messenger used when no provider is configured. It logs
// the send and reports a simulated success.
type Simulated struct{}

// SendEmail implements Messenger.
func (Simulated) SendEmail(ctx context.Context, to, subject, _ string) (SendResult, error) {
	id := "sim_" + uuid.NewString()
	slog.InfoContext(ctx, "simulated email send",
		"to", to,
		"subject", subject,
		"message_id", id,
		"idempotency_key", IdempotencyKey(ctx))
	return SendResult{Success: true, ID: id, Simulated: true}, nil
}

// SendSMS implements Messenger.
func (Simulated) SendSMS(ctx context.Context, to, _ string) (SendResult, error) {
	id := "sim_" + uuid.NewString()
	slog.InfoContext(ctx, "simulated sms send",
		"to", to,
		"message_id", id,
		"idempotency_key", IdempotencyKey(ctx))
	return SendResult{Success: true, ID: id, Simulated: true}, nil
}
