package compiler

import (
	"fmt"
	"strings"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrRuleNameEmpty      = "E101" // name is required
	ErrInvalidTrigger     = "E102" // missing trigger or unknown trigger type
	ErrRuleNoActions      = "E103" // at least one action required
	ErrUnknownActionType  = "E104" // action type not in the closed set
	ErrMissingConfigField = "E105" // required config field is empty
	ErrDuplicateOrder     = "E106" // two actions share an order
	ErrInvalidConfig      = "E107" // config failed to decode
	ErrNegativeOrder      = "E108" // order must be >= 0
)

// ValidationError represents a rule validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a rule before it is stored.
// Returns all errors found (does not fail-fast).
func Validate(r ir.Rule) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(r.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: "name is required and must be non-empty",
			Code:    ErrRuleNameEmpty,
		})
	}

	switch {
	case r.Trigger == nil:
		errs = append(errs, ValidationError{
			Field:   "trigger",
			Message: "trigger is required",
			Code:    ErrInvalidTrigger,
		})
	case !r.Trigger.Type.Valid():
		errs = append(errs, ValidationError{
			Field:   "trigger.type",
			Message: fmt.Sprintf("unknown trigger type %q", r.Trigger.Type),
			Code:    ErrInvalidTrigger,
		})
	}

	if len(r.Actions) == 0 {
		errs = append(errs, ValidationError{
			Field:   "actions",
			Message: "at least one action is required",
			Code:    ErrRuleNoActions,
		})
	}

	orders := make(map[int]int)
	for i, a := range r.Actions {
		field := fmt.Sprintf("actions[%d]", i)

		if a.Order < 0 {
			errs = append(errs, ValidationError{
				Field:   field + ".order",
				Message: fmt.Sprintf("order must be >= 0, got %d", a.Order),
				Code:    ErrNegativeOrder,
			})
		}
		if prev, ok := orders[a.Order]; ok {
			errs = append(errs, ValidationError{
				Field:   field + ".order",
				Message: fmt.Sprintf("order %d already used by actions[%d]", a.Order, prev),
				Code:    ErrDuplicateOrder,
			})
		} else {
			orders[a.Order] = i
		}

		if !a.Type.Valid() {
			errs = append(errs, ValidationError{
				Field:   field + ".type",
				Message: fmt.Sprintf("unknown action type %q", a.Type),
				Code:    ErrUnknownActionType,
			})
			continue
		}
		errs = append(errs, validateConfig(a, field+".config")...)
	}

	return errs
}

// validateConfig checks the fields each action type cannot run without.
func validateConfig(a ir.Action, field string) []ValidationError {
	missing := func(name string) []ValidationError {
		return []ValidationError{{
			Field:   field + "." + name,
			Message: fmt.Sprintf("%s requires a non-empty %s", a.Type, name),
			Code:    ErrMissingConfigField,
		}}
	}

	if a.Config != nil && a.Config.ActionType() != a.Type {
		return []ValidationError{{
			Field:   field,
			Message: fmt.Sprintf("config for %s attached to %s action", a.Config.ActionType(), a.Type),
			Code:    ErrInvalidConfig,
		}}
	}

	switch cfg := a.Config.(type) {
	case nil:
		if a.Type == ir.ActionUpdateField {
			return nil
		}
		return []ValidationError{{
			Field:   field,
			Message: "config is required",
			Code:    ErrInvalidConfig,
		}}
	case ir.RawConfig:
		msg := "config could not be decoded"
		if cfg.Err != nil {
			msg = cfg.Err.Error()
		}
		return []ValidationError{{Field: field, Message: msg, Code: ErrInvalidConfig}}
	case ir.SendEmailConfig:
		if strings.TrimSpace(cfg.Subject) == "" {
			return missing("subject")
		}
	case ir.SendSMSConfig:
		if strings.TrimSpace(cfg.Message) == "" {
			return missing("message")
		}
	case ir.CreateTaskConfig:
		if strings.TrimSpace(cfg.Title) == "" {
			return missing("title")
		}
	case ir.AddTagConfig:
		if strings.TrimSpace(cfg.Tag) == "" {
			return missing("tag")
		}
	case ir.UpdateFieldConfig:
	}
	return nil
}
