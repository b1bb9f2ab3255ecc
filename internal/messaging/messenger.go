// Package messaging holds the outbound email and SMS collaborators used by
// the SEND_EMAIL and SEND_SMS actions.
package messaging

import "context"

// SendResult is the provider's answer to one send.
type SendResult struct {
	Success   bool   `json:"success"`
	ID        string `json:"id,omitempty"`
	Simulated bool   `json:"simulated,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Messenger sends email and SMS. Implementations must be safe to call with
// no provider credentials configured.
type Messenger interface {
	SendEmail(ctx context.Context, to, subject, html string) (SendResult, error)
	SendSMS(ctx context.Context, to, body string) (SendResult, error)
}

type idempotencyKey struct{}

// WithIdempotencyKey attaches the effect key of the current send so that
// deliverers can drop duplicates.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey{}, key)
}

// IdempotencyKey returns the key set by WithIdempotencyKey, if any.
func IdempotencyKey(ctx context.Context) string {
	key, _ := ctx.Value(idempotencyKey{}).(string)
	return key
}
