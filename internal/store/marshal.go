package store

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
)

// EncodeConditions serializes trigger conditions as canonical JSON.
func EncodeConditions(c ir.Object) (string, error) {
	if c == nil {
		return "{}", nil
	}
	data, err := ir.MarshalCanonical(c)
	if err != nil {
		return "", fmt.Errorf("encode conditions: %w", err)
	}
	return string(data), nil
}

// EncodeConfig serializes an action config as canonical JSON.
func EncodeConfig(cfg ir.ActionConfig) (string, error) {
	if cfg == nil {
		return "{}", nil
	}
	data, err := ir.MarshalCanonical(ir.EncodeActionConfig(cfg))
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return string(data), nil
}

// DecodeAction rebuilds an action from its stored columns. A config that
// does not decode, as JSON or as the type's fields, is kept as ir.RawConfig
// so the rule still loads and only this action fails when dispatched.
func DecodeAction(id, typ, config string, position int) ir.Action {
	t := ir.ActionType(typ)
	a := ir.Action{ID: id, Type: t, Order: position}

	raw, err := ir.DecodeObject([]byte(config))
	if err != nil {
		slog.Warn("stored action config is not a JSON object",
			"action_id", id,
			"action_type", typ,
			"error", err)
		a.Config = ir.RawConfig{Type: t, Err: fmt.Errorf("decode config of action %s: %w", id, err)}
		return a
	}
	a.Config = ir.DecodeActionConfigLenient(t, raw)
	return a
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
