// Package compiler turns CUE rule definitions into ir.Rule values and
// validates rules before they are stored.
//
// A rule file declares rules under the top-level "rule" struct:
//
//	rule: "welcome-email": {
//		name:   "Welcome email"
//		active: true
//		trigger: {
//			type: "CONTACT_CREATED"
//			conditions: {source: "web"}
//		}
//		actions: [
//			{type: "CREATE_TASK", config: {title: "Call new lead"}},
//			{type: "SEND_EMAIL", config: {subject: "Welcome", body: "<p>Hi</p>"}},
//		]
//	}
//
// Action order is the list position.
package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/google/uuid"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
)

// ruleNamespace seeds deterministic rule IDs.
var ruleNamespace = uuid.MustParse("6f1c2d7e-3b4a-5c8d-9e0f-a1b2c3d4e5f6")

// Definition is one compiled rule together with the key it was declared
// under.
type Definition struct {
	Key  string
	Rule ir.Rule
}

// RuleID derives a stable rule ID from tenant and rule key so that
// re-importing the same file replaces rules instead of duplicating them.
func RuleID(tenantID, key string) string {
	return uuid.NewSHA1(ruleNamespace, []byte(tenantID+"/"+key)).String()
}

// CompileSource compiles a single CUE document. filename is used in error
// positions only.
func CompileSource(filename string, src []byte) ([]Definition, []error) {
	v := cuecontext.New().CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}
	return CompileValue(v)
}

// CompileValue compiles every rule under the "rule" field of root, in
// declaration order. All compile errors are collected.
func CompileValue(root cue.Value) ([]Definition, []error) {
	rulesVal := root.LookupPath(cue.ParsePath("rule"))
	if !rulesVal.Exists() {
		return nil, nil
	}

	iter, err := rulesVal.Fields()
	if err != nil {
		return nil, []error{formatCUEError(err)}
	}

	var (
		defs []Definition
		errs []error
	)
	for iter.Next() {
		r, err := CompileRule(iter.Value())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		defs = append(defs, Definition{Key: iter.Selector().Unquoted(), Rule: *r})
	}
	return defs, errs
}

// CompileRule parses one rule struct into an ir.Rule. IDs are left empty.
func CompileRule(v cue.Value) (*ir.Rule, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	r := &ir.Rule{IsActive: true}

	name, err := requiredString(v, "name")
	if err != nil {
		return nil, err
	}
	r.Name = name

	if tenantVal := v.LookupPath(cue.ParsePath("tenant")); tenantVal.Exists() {
		if r.TenantID, err = tenantVal.String(); err != nil {
			return nil, formatCUEError(err)
		}
	}

	if activeVal := v.LookupPath(cue.ParsePath("active")); activeVal.Exists() {
		if r.IsActive, err = activeVal.Bool(); err != nil {
			return nil, formatCUEError(err)
		}
	}

	if r.Trigger, err = parseTrigger(v); err != nil {
		return nil, err
	}
	if r.Actions, err = parseActions(v); err != nil {
		return nil, err
	}
	return r, nil
}

func parseTrigger(v cue.Value) (*ir.Trigger, error) {
	triggerVal := v.LookupPath(cue.ParsePath("trigger"))
	if !triggerVal.Exists() {
		return nil, &CompileError{Field: "trigger", Message: "trigger is required", Pos: v.Pos()}
	}

	typeStr, err := requiredString(triggerVal, "type")
	if err != nil {
		return nil, err
	}
	tt, err := ir.ParseTriggerType(typeStr)
	if err != nil {
		return nil, &CompileError{Field: "trigger.type", Message: err.Error(), Pos: triggerVal.Pos()}
	}

	trigger := &ir.Trigger{Type: tt, Conditions: ir.Object{}}
	condVal := triggerVal.LookupPath(cue.ParsePath("conditions"))
	if condVal.Exists() {
		cond, err := convertValue(condVal, "trigger.conditions")
		if err != nil {
			return nil, err
		}
		obj, ok := cond.(ir.Object)
		if !ok {
			return nil, &CompileError{Field: "trigger.conditions", Message: "conditions must be a struct", Pos: condVal.Pos()}
		}
		trigger.Conditions = obj
	}
	return trigger, nil
}

func parseActions(v cue.Value) ([]ir.Action, error) {
	actionsVal := v.LookupPath(cue.ParsePath("actions"))
	if !actionsVal.Exists() {
		return nil, nil
	}

	iter, err := actionsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var actions []ir.Action
	for i := 0; iter.Next(); i++ {
		av := iter.Value()
		field := fmt.Sprintf("actions[%d]", i)

		typeStr, err := requiredString(av, "type")
		if err != nil {
			return nil, err
		}
		at, err := ir.ParseActionType(typeStr)
		if err != nil {
			return nil, &CompileError{Field: field + ".type", Message: err.Error(), Pos: av.Pos()}
		}

		raw := ir.Object{}
		if cfgVal := av.LookupPath(cue.ParsePath("config")); cfgVal.Exists() {
			cv, err := convertValue(cfgVal, field+".config")
			if err != nil {
				return nil, err
			}
			obj, ok := cv.(ir.Object)
			if !ok {
				return nil, &CompileError{Field: field + ".config", Message: "config must be a struct", Pos: cfgVal.Pos()}
			}
			raw = obj
		}

		cfg, err := ir.DecodeActionConfig(at, raw)
		if err != nil {
			return nil, &CompileError{Field: field + ".config", Message: err.Error(), Pos: av.Pos()}
		}
		actions = append(actions, ir.Action{Type: at, Config: cfg, Order: i})
	}
	return actions, nil
}

func requiredString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &CompileError{Field: field, Message: field + " is required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	if strings.TrimSpace(s) == "" {
		return "", &CompileError{Field: field, Message: field + " must be non-empty", Pos: fv.Pos()}
	}
	return s, nil
}

// convertValue converts a concrete CUE value into the ir value model.
// Floats are rejected: a rule file compares with strict equality, and a
// decimal condition would only ever match the exact literal an emitter sends.
func convertValue(v cue.Value, field string) (ir.Value, error) {
	if !v.IsConcrete() {
		return nil, &CompileError{Field: field, Message: "value must be concrete", Pos: v.Pos()}
	}

	switch v.Kind() {
	case cue.NullKind:
		return ir.Null{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Bool(b), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.String(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
		}
		return ir.Int(n), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		arr := ir.Array{}
		for i := 0; iter.Next(); i++ {
			elem, err := convertValue(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		obj := ir.Object{}
		for iter.Next() {
			key := iter.Selector().Unquoted()
			elem, err := convertValue(iter.Value(), field+"."+key)
			if err != nil {
				return nil, err
			}
			obj[key] = elem
		}
		return obj, nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{Field: field, Message: "float values are not supported, use int or string", Pos: v.Pos()}
	default:
		return nil, &CompileError{Field: field, Message: fmt.Sprintf("unsupported value kind: %v", v.Kind()), Pos: v.Pos()}
	}
}
