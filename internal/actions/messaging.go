package actions

import (
	"context"
	"fmt"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/messaging"
)

// SendEmail handles SEND_EMAIL. The recipient is config.to, else
// contact.email, else contactEmail from the context.
type SendEmail struct {
	Messenger messaging.Messenger
}

// Execute implements Handler.
func (h *SendEmail) Execute(ctx context.Context, action ir.Action, ec ir.ExecutionContext) (ir.Object, error) {
	cfg, err := configAs[ir.SendEmailConfig](action)
	if err != nil {
		return nil, err
	}
	to := cfg.To
	if to == "" {
		to, _ = ec.FirstString(ir.PathContactEmail, ir.KeyContactEmail)
	}
	if to == "" {
		return nil, fmt.Errorf("send email: %w", ErrNoRecipient)
	}

	res, err := h.Messenger.SendEmail(effectContext(ctx, action, ec), to, cfg.Subject, cfg.Body)
	if err != nil {
		return nil, fmt.Errorf("send email: %w", err)
	}
	return sendResult(to, res)
}

// SendSMS handles SEND_SMS. The recipient is config.to, else contact.phone,
// else contactPhone from the context.
type SendSMS struct {
	Messenger messaging.Messenger
}

// Execute implements Handler.
func (h *SendSMS) Execute(ctx context.Context, action ir.Action, ec ir.ExecutionContext) (ir.Object, error) {
	cfg, err := configAs[ir.SendSMSConfig](action)
	if err != nil {
		return nil, err
	}
	to := cfg.To
	if to == "" {
		to, _ = ec.FirstString(ir.PathContactPhone, ir.KeyContactPhone)
	}
	if to == "" {
		return nil, fmt.Errorf("send sms: %w", ErrNoRecipient)
	}

	res, err := h.Messenger.SendSMS(effectContext(ctx, action, ec), to, cfg.Message)
	if err != nil {
		return nil, fmt.Errorf("send sms: %w", err)
	}
	return sendResult(to, res)
}

func sendResult(to string, res messaging.SendResult) (ir.Object, error) {
	if !res.Success {
		return nil, fmt.Errorf("%w: %s", ErrProviderRejected, res.Error)
	}
	out := ir.Object{"to": ir.String(to)}
	if res.ID != "" {
		out["message_id"] = ir.String(res.ID)
	}
	if res.Simulated {
		out["simulated"] = ir.Bool(true)
	}
	return out, nil
}
