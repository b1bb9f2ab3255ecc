// Package actions implements the side effect of each action type and the
// registry the executor dispatches through.
package actions

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/messaging"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/store"
)

var (
	// ErrNoRecipient is returned when neither the config nor the context
	// names a recipient.
	ErrNoRecipient = errors.New("no recipient")
	// ErrMissingField is returned when a required config or context field is
	// empty.
	ErrMissingField = errors.New("missing required field")
	// ErrInvalidConfig is returned when an action carries a config of the
	// wrong variant or one that failed to decode.
	ErrInvalidConfig = errors.New("invalid action config")
	// ErrProviderRejected is returned when the messaging provider answers
	// with success=false.
	ErrProviderRejected = errors.New("provider rejected send")
)

// Handler performs the effect of one action type. It returns a result
// object on success; any error is recorded by the executor as a failed
// action.
type Handler interface {
	Execute(ctx context.Context, action ir.Action, ec ir.ExecutionContext) (ir.Object, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, action ir.Action, ec ir.ExecutionContext) (ir.Object, error)

// Execute implements Handler.
func (f HandlerFunc) Execute(ctx context.Context, action ir.Action, ec ir.ExecutionContext) (ir.Object, error) {
	return f(ctx, action, ec)
}

// Registry maps action types to handlers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[ir.ActionType]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[ir.ActionType]Handler)}
}

// NewDefaultRegistry registers the built-in handlers for every action type.
func NewDefaultRegistry(m messaging.Messenger, records store.Records) *Registry {
	r := NewRegistry()
	r.Register(ir.ActionSendEmail, &SendEmail{Messenger: m})
	r.Register(ir.ActionSendSMS, &SendSMS{Messenger: m})
	r.Register(ir.ActionCreateTask, &CreateTask{Records: records})
	r.Register(ir.ActionAddTag, &AddTag{Records: records})
	r.Register(ir.ActionUpdateField, UpdateField{})
	return r
}

// Register installs h for t, replacing any previous handler.
func (r *Registry) Register(t ir.ActionType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = h
}

// Lookup returns the handler for t.
func (r *Registry) Lookup(t ir.ActionType) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	return h, ok
}

// configAs asserts the typed config of action. A RawConfig surfaces its
// decode error.
func configAs[T ir.ActionConfig](action ir.Action) (T, error) {
	var zero T
	switch cfg := action.Config.(type) {
	case T:
		return cfg, nil
	case ir.RawConfig:
		if cfg.Err == nil {
			return zero, fmt.Errorf("%w: unsupported type %s", ErrInvalidConfig, cfg.Type)
		}
		return zero, fmt.Errorf("%w: %v", ErrInvalidConfig, cfg.Err)
	default:
		return zero, fmt.Errorf("%w: %s action carries %T", ErrInvalidConfig, action.Type, action.Config)
	}
}

func effectContext(ctx context.Context, action ir.Action, ec ir.ExecutionContext) context.Context {
	if ec.EventID == "" {
		return ctx
	}
	return messaging.WithIdempotencyKey(ctx, ir.EffectKey(ec.EventID, ec.RuleID, action.ID))
}
